package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/contractflow/internal/runtime/contract"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

func testDispatchInfo() DispatchInfo {
	return DispatchInfo{
		Kind:     contract.KindOperation,
		Contract: "measure",
		Handler:  "measureHandler",
		Subject:  "devices.d1.measure",
		Headers:  metadatapkg.New(metadatapkg.HeaderRequestID, "req-1"),
	}
}

func TestDispatchHooks_OnStart(t *testing.T) {
	var captured DispatchContext
	called := false

	mw := dispatchHooksMiddleware(DispatchHooks{
		OnStart: func(ctx DispatchContext) {
			called = true
			captured = ctx
		},
	})
	err := mw(func(context.Context, DispatchInfo) error { return nil })(context.Background(), testDispatchInfo())

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "measure", captured.Contract)
	assert.Equal(t, "measureHandler", captured.Handler)
	assert.Equal(t, "devices.d1.measure", captured.Subject)
	assert.Equal(t, "req-1", captured.RequestID)
	assert.False(t, captured.StartedAt.IsZero())
}

func TestDispatchHooks_OnDone(t *testing.T) {
	var captured DispatchContext
	mw := dispatchHooksMiddleware(DispatchHooks{
		OnDone:  func(ctx DispatchContext) { captured = ctx },
		OnError: func(DispatchContext, error) { t.Fatal("OnError must not run on success") },
	})
	err := mw(func(context.Context, DispatchInfo) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})(context.Background(), testDispatchInfo())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, captured.Duration, 10*time.Millisecond)
}

func TestDispatchHooks_OnError(t *testing.T) {
	expected := errors.New("handler error")
	var captured error

	mw := dispatchHooksMiddleware(DispatchHooks{
		OnDone:  func(DispatchContext) { t.Fatal("OnDone must not run on failure") },
		OnError: func(_ DispatchContext, err error) { captured = err },
	})
	err := mw(func(context.Context, DispatchInfo) error { return expected })(context.Background(), testDispatchInfo())

	assert.ErrorIs(t, err, expected)
	assert.Equal(t, expected, captured)
}

func TestDispatchHooks_Merge(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) func(DispatchContext) {
		return func(DispatchContext) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}

	merged := DispatchHooks{OnStart: record("a")}.Merge(DispatchHooks{OnStart: record("b"), OnDone: record("done")})
	require.NotNil(t, merged.OnStart)
	require.NotNil(t, merged.OnDone)
	assert.Nil(t, merged.OnError)

	err := dispatchHooksMiddleware(merged)(func(context.Context, DispatchInfo) error { return nil })(context.Background(), testDispatchInfo())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "done"}, order)
}

func TestDispatchHooks_Empty(t *testing.T) {
	assert.True(t, DispatchHooks{}.empty())
	assert.False(t, AlertingHooks(func(DispatchContext, error) {}).empty())
}

func TestMetricsHooks(t *testing.T) {
	var starts, dones, failures int
	hooks := MetricsHooks(
		func(name, subject string) {
			assert.Equal(t, "measure", name)
			assert.Equal(t, "devices.d1.measure", subject)
			starts++
		},
		func(string, string) { dones++ },
		func(string, string) { failures++ },
	)
	mw := dispatchHooksMiddleware(hooks)

	_ = mw(func(context.Context, DispatchInfo) error { return nil })(context.Background(), testDispatchInfo())
	_ = mw(func(context.Context, DispatchInfo) error { return errors.New("boom") })(context.Background(), testDispatchInfo())

	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, dones)
	assert.Equal(t, 1, failures)
}

func TestLoggingHooks(t *testing.T) {
	logger := &recordingLogger{}
	mw := dispatchHooksMiddleware(LoggingHooks(logger))

	_ = mw(func(context.Context, DispatchInfo) error { return nil })(context.Background(), testDispatchInfo())
	_ = mw(func(context.Context, DispatchInfo) error { return errors.New("boom") })(context.Background(), testDispatchInfo())

	assert.Equal(t, []string{"Dispatch started", "Dispatch started"}, logger.messages("debug"))
	assert.Equal(t, []string{"Dispatch completed"}, logger.messages("info"))
	assert.Equal(t, []string{"Dispatch failed"}, logger.messages("error"))
	assert.Equal(t, "req-1", logger.lastFields()["request_id"])
}
