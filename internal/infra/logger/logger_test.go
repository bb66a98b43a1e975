package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"subscription_reminder_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_ProductionWritesJSONWithDefaultFields(t *testing.T) {
	Init(&config.AppConfig{LogLevel: "debug", Environment: "production"})
	var buf bytes.Buffer
	Log.SetOutput(&buf)

	Component("scheduler").WithField("subscription_id", "abc").Info("Sweep finished")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Sweep finished", line["message"])
	assert.Equal(t, "scheduler", line["component"])
	assert.Equal(t, "abc", line["subscription_id"])
	assert.Equal(t, serviceName, line["service"])
	assert.Equal(t, "production", line["environment"])
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	Init(&config.AppConfig{LogLevel: "loud", Environment: "development"})
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
	_, isText := Log.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestDefaultFields_DoNotOverrideEntryFields(t *testing.T) {
	Init(&config.AppConfig{LogLevel: "info", Environment: "staging"})
	var buf bytes.Buffer
	Log.SetOutput(&buf)

	Log.WithField("environment", "override").Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "override", line["environment"])
}
