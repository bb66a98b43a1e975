package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"subscription_reminder_bot/internal/app"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingSweeper struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	gotNow  time.Time
}

func (b *blockingSweeper) Sweep(_ context.Context, now time.Time) (app.SweepResult, error) {
	b.calls.Add(1)
	b.gotNow = now
	if b.started != nil {
		close(b.started)
	}
	if b.release != nil {
		<-b.release
	}
	return app.SweepResult{Processed: 1}, nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestRunOnce_PassesUTCNow(t *testing.T) {
	sw := &blockingSweeper{}
	s := NewReminderScheduler(sw, quietLogger(), "@every 1h", time.Second)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	s.now = func() time.Time { return fixed }

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, time.UTC, sw.gotNow.Location())
	assert.True(t, fixed.Equal(sw.gotNow))
}

func TestRunOnce_SkipsOverlappingSweep(t *testing.T) {
	sw := &blockingSweeper{release: make(chan struct{}), started: make(chan struct{})}
	s := NewReminderScheduler(sw, quietLogger(), "@every 1h", time.Second)

	done := make(chan struct{})
	go func() {
		_, _ = s.RunOnce(context.Background())
		close(done)
	}()
	<-sw.started

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)

	close(sw.release)
	<-done
	assert.Equal(t, int32(1), sw.calls.Load())
}

func TestStart_RejectsBadCronExpression(t *testing.T) {
	s := NewReminderScheduler(&blockingSweeper{}, quietLogger(), "not a cron expression", time.Second)
	assert.Error(t, s.Start())
}
