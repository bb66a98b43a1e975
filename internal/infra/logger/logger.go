// internal/infra/logger/logger.go
package logger

import (
	"os"

	"subscription_reminder_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
)

const serviceName = "subscription_reminder_bot"

// Log is the global logger instance
var Log = logrus.New()

// defaultFields stamps every entry with the fields that identify this process,
// so JSON logs from several deployments can share one sink.
type defaultFields logrus.Fields

func (defaultFields) Levels() []logrus.Level { return logrus.AllLevels }

func (f defaultFields) Fire(e *logrus.Entry) error {
	for k, v := range f {
		if _, ok := e.Data[k]; !ok {
			e.Data[k] = v
		}
	}
	return nil
}

// Init configures the global logger from the application configuration:
// level, output format and the service/environment fields.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout)
	Log.ReplaceHooks(make(logrus.LevelHooks))
	Log.AddHook(defaultFields{"service": serviceName, "environment": cfg.Environment})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		Log.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", cfg.LogLevel, err)
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	if cfg.Environment == "production" || cfg.Environment == "staging" {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	Log.WithField("level", Log.GetLevel().String()).Debug("Logger initialized")
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
