package watch

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(logging.DefaultConfig(), io.Discard)
}

func TestNew_ValidatesSchedule(t *testing.T) {
	noop := func(context.Context) error { return nil }

	for _, schedule := range []string{"@every 10m", "*/5 * * * *", "@hourly"} {
		_, err := New(schedule, noop, quietLogger())
		assert.NoError(t, err, schedule)
	}

	_, err := New("every now and then", noop, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	_, err = New("@every 1m", nil, quietLogger())
	assert.Error(t, err)
}

func TestTrigger_RecordsRuns(t *testing.T) {
	var calls atomic.Int32
	w, err := New("@every 1h", func(context.Context) error {
		if calls.Add(1) == 2 {
			return fmt.Errorf("engine failed")
		}
		return nil
	}, quietLogger())
	require.NoError(t, err)

	w.Trigger()
	w.Trigger()

	st := w.Status()
	assert.Equal(t, 2, st.Runs)
	assert.Equal(t, 1, st.Failures)
	assert.EqualError(t, st.LastError, "engine failed")
	assert.False(t, st.LastRun.IsZero())
	assert.True(t, st.NextRun.After(time.Now()))
	assert.Equal(t, "@every 1h", st.Schedule)
}

func TestTrigger_SkipsWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	w, err := New("@every 1h", func(context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	}, quietLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.Trigger()
		close(done)
	}()
	<-started

	w.Trigger()
	assert.Equal(t, int32(1), calls.Load(), "overlapping tick must be skipped")

	close(release)
	<-done
	assert.Equal(t, 1, w.Status().Runs)
}

func TestTrigger_RecoversPanics(t *testing.T) {
	w, err := New("@every 1h", func(context.Context) error {
		panic("boom")
	}, quietLogger())
	require.NoError(t, err)

	assert.NotPanics(t, w.Trigger)
	assert.NotPanics(t, w.Trigger, "the skip guard is released after a panic")
}

func TestRun_ImmediateScanAndShutdown(t *testing.T) {
	scanStarted := make(chan struct{})
	var sawCancel atomic.Bool

	w, err := New("@every 1h", func(ctx context.Context) error {
		close(scanStarted)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx, true) }()

	select {
	case <-scanStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate scan did not start")
	}
	assert.True(t, w.Status().Running)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	assert.True(t, sawCancel.Load(), "stopping cancels the running scan")
	st := w.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 1, st.Failures)
}

func TestStart_Twice(t *testing.T) {
	w, err := New("@every 1h", func(context.Context) error { return nil }, quietLogger())
	require.NoError(t, err)

	require.NoError(t, w.Start())
	defer w.Stop()
	assert.Error(t, w.Start())
	assert.False(t, w.Status().NextRun.IsZero())
}
