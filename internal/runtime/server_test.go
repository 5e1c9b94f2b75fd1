package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/contractflow/internal/runtime/address"
	"github.com/drblury/contractflow/internal/runtime/app"
	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/handlers"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

func measureBinding(t *testing.T, op *measureOp) handlers.OperationBinding {
	t.Helper()
	b, err := handlers.ImplementOperation(op, func(ctx context.Context, req *handlers.Request[deviceParams, measureRequest, measureResponse, measureResponse]) error {
		if req.Payload().Value < 0 {
			return errValue
		}
		if req.Payload().Value == 99 {
			panic("sensor exploded")
		}
		return req.Respond(ctx, measureResponse{Success: true, Result: req.Params().DeviceID}, nil)
	})
	require.NoError(t, err)
	return b
}

func sensorBinding(t *testing.T, ev *contract.Event[deviceParams, reading], seen chan<- reading) handlers.EventBinding {
	t.Helper()
	b, err := handlers.ConsumeEvent(ev, func(_ context.Context, msg *handlers.Message[deviceParams, reading]) error {
		if seen != nil {
			seen <- msg.Payload()
		}
		return nil
	})
	require.NoError(t, err)
	return b
}

func TestNewServer_RequiresAdapter(t *testing.T) {
	_, err := NewServer(nil)
	assert.ErrorIs(t, err, errspkg.ErrAdapterRequired)
}

func TestNewServer_MiddlewareBuilderFailure(t *testing.T) {
	_, err := NewServer(&fakeAdapter{}, WithMiddlewares(MiddlewareRegistration{
		Name:    "broken",
		Builder: func(*Server) (Middleware, error) { return nil, errors.New("nope") },
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	_, err = NewServer(&fakeAdapter{}, WithMiddlewares(MiddlewareRegistration{}))
	assert.Error(t, err)
}

func TestServer_Lifecycle(t *testing.T) {
	fx := newFixture(t)
	adapter := &fakeAdapter{}
	srv, err := NewServer(adapter)
	require.NoError(t, err)
	assert.Equal(t, StateUnbound, srv.State())
	assert.Nil(t, srv.Table())

	assert.ErrorIs(t, srv.Start(context.Background()), errspkg.ErrNotBound)
	require.NoError(t, srv.Stop(context.Background()))
	assert.Equal(t, StateUnbound, srv.State(), "stop before start is a no-op")

	require.NoError(t, srv.Bind(fx.app, measureBinding(t, fx.measure), sensorBinding(t, fx.sensor, nil)))
	assert.Equal(t, StateBound, srv.State())
	assert.ErrorIs(t, srv.Bind(fx.app), errspkg.ErrAlreadyBound)

	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, StateStarted, srv.State())
	assert.Same(t, srv.Table(), adapter.served)
	assert.ErrorIs(t, srv.Start(context.Background()), errspkg.ErrAlreadyStarted)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
	assert.Equal(t, StateStopped, srv.State())
	assert.Equal(t, 1, adapter.stopCount())

	assert.ErrorIs(t, srv.Start(context.Background()), errspkg.ErrServerStopped)
	assert.ErrorIs(t, srv.Bind(fx.app), errspkg.ErrServerStopped)
}

func TestServer_StartFailureStaysBound(t *testing.T) {
	fx := newFixture(t)
	adapter := &fakeAdapter{serveErr: errors.New("listen failed")}
	srv, err := NewServer(adapter)
	require.NoError(t, err)
	require.NoError(t, srv.Bind(fx.app, measureBinding(t, fx.measure)))

	assert.EqualError(t, srv.Start(context.Background()), "listen failed")
	assert.Equal(t, StateBound, srv.State())
}

func TestServer_BindRejectsForeignContract(t *testing.T) {
	fx := newFixture(t)
	foreign := contract.MustOperation(contract.OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:    "measure",
		Address: "devices.{device_id}.measure",
	})
	srv, err := NewServer(&fakeAdapter{})
	require.NoError(t, err)

	err = srv.Bind(fx.app, measureBinding(t, foreign))
	var unsupported *errspkg.UnsupportedHandlerError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "devices", unsupported.Application)
	assert.Equal(t, StateUnbound, srv.State())
	assert.Nil(t, srv.Table())
}

func TestServer_BindRejectsDuplicateBinding(t *testing.T) {
	fx := newFixture(t)
	srv, err := NewServer(&fakeAdapter{})
	require.NoError(t, err)

	first := measureBinding(t, fx.measure)
	second := measureBinding(t, fx.measure)
	err = srv.Bind(fx.app, first, second)

	var dup *errspkg.DuplicateSubjectError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.Name(), dup.First)
	assert.Equal(t, "devices.{device_id}.measure", dup.Subject)
	assert.Equal(t, StateUnbound, srv.State())
}

func TestServer_BindRejectsOverlappingTemplates(t *testing.T) {
	a := contract.MustOperation(contract.OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:    "by-device",
		Address: "devices.{device_id}.status",
	})
	b := contract.MustOperation(contract.OperationSpec[address.NoParams, measureRequest, measureResponse, measureResponse]{
		Name:    "fleet",
		Address: "devices.all.status",
	})
	application := app.MustNew(app.Info{Name: "fleet"}, a, b)

	ba, err := handlers.ImplementOperation(a, func(context.Context, *handlers.Request[deviceParams, measureRequest, measureResponse, measureResponse]) error {
		return nil
	})
	require.NoError(t, err)
	bb, err := handlers.ImplementOperation(b, func(context.Context, *handlers.Request[address.NoParams, measureRequest, measureResponse, measureResponse]) error {
		return nil
	})
	require.NoError(t, err)

	srv, err := NewServer(&fakeAdapter{})
	require.NoError(t, err)
	var dup *errspkg.DuplicateSubjectError
	require.ErrorAs(t, srv.Bind(application, ba, bb), &dup)
	assert.Equal(t, ba.Name(), dup.First)
	assert.Equal(t, bb.Name(), dup.Second)
}

func TestServer_BindRejectsSharedWildcardPattern(t *testing.T) {
	newOp := func(name, addr string) *measureOp {
		return contract.MustOperation(contract.OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
			Name:    name,
			Address: addr,
		})
	}
	v, w := newOp("v", "dev.v{device_id}"), newOp("w", "dev.w{device_id}")
	require.Equal(t, v.Address().Pattern(), w.Address().Pattern())
	application := app.MustNew(app.Info{Name: "dev"}, v, w)

	srv, err := NewServer(&fakeAdapter{})
	require.NoError(t, err)
	err = srv.Bind(application, measureBinding(t, v), measureBinding(t, w))

	var dup *errspkg.DuplicateSubjectError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "dev.v{device_id}", dup.Subject)
	assert.Equal(t, StateUnbound, srv.State())
}

func TestServer_OperationAndEventMayShareTemplate(t *testing.T) {
	op := contract.MustOperation(contract.OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:    "status",
		Address: "devices.{device_id}.status",
	})
	ev := contract.MustEvent(contract.EventSpec[deviceParams, reading]{
		Name:    "status-changed",
		Address: "devices.{device_id}.status",
	})
	application := app.MustNew(app.Info{Name: "devices"}, op, ev)

	srv, err := NewServer(&fakeAdapter{})
	require.NoError(t, err)
	assert.NoError(t, srv.Bind(application, measureBinding(t, op), sensorBinding(t, ev, nil)))
}

func TestServer_DispatchThroughRoutes(t *testing.T) {
	fx := newFixture(t)
	logger := &recordingLogger{}
	var started []string
	srv, err := NewServer(&fakeAdapter{},
		WithLogger(logger),
		WithHooks(DispatchHooks{OnStart: func(ctx DispatchContext) { started = append(started, ctx.Contract) }}),
	)
	require.NoError(t, err)

	seen := make(chan reading, 1)
	require.NoError(t, srv.Bind(fx.app, measureBinding(t, fx.measure), sensorBinding(t, fx.sensor, seen)))
	table := srv.Table()
	require.Len(t, table.Operations, 1)
	require.Len(t, table.Events, 1)
	assert.Equal(t, "devices.*.measure", table.Operations[0].Pattern())
	assert.Equal(t, "sensor-reading", table.Events[0].Name())

	req := &fakeRequest{subject: "devices.d7.measure", data: []byte(`{"value":3}`)}
	require.NoError(t, table.Operations[0].Serve(context.Background(), req))
	assert.JSONEq(t, `{"success":true,"result":"d7"}`, string(req.reply))

	failing := &fakeRequest{subject: "devices.d7.measure", data: []byte(`{"value":-1}`)}
	require.NoError(t, table.Operations[0].Serve(context.Background(), failing))
	assert.Equal(t, 400, failing.errCode)

	msg := &fakeMessage{subject: "sensors.d7.data", data: []byte(`{"temperature":21.5}`), headers: metadatapkg.Metadata{}}
	require.NoError(t, table.Events[0].Serve(context.Background(), msg))
	assert.Equal(t, reading{Temperature: 21.5}, <-seen)
	assert.True(t, msg.acked)

	assert.Equal(t, []string{"measure", "measure", "sensor-reading"}, started)

	routes := srv.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "operation", routes[0].Kind)
	assert.Equal(t, uint64(2), routes[0].Stats.Snapshot().Processed)
	assert.Equal(t, uint64(1), routes[1].Stats.Snapshot().Processed)
	assert.Contains(t, logger.messages("info"), "Bound application")
}

func TestServer_RecoversPanics(t *testing.T) {
	fx := newFixture(t)
	srv, err := NewServer(&fakeAdapter{})
	require.NoError(t, err)
	require.NoError(t, srv.Bind(fx.app, measureBinding(t, fx.measure)))

	req := &fakeRequest{subject: "devices.d1.measure", data: []byte(`{"value":99}`)}
	err = srv.Table().Operations[0].Serve(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor exploded")

	stats := srv.Table().Operations[0].Stats.Snapshot()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Errors.Other)
}

func TestServer_Run(t *testing.T) {
	fx := newFixture(t)
	adapter := &fakeAdapter{}
	srv, err := NewServer(adapter, WithoutDefaultMiddlewares())
	require.NoError(t, err)
	require.NoError(t, srv.Bind(fx.app, measureBinding(t, fx.measure)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.State() == StateStarted }, timeoutShort, tick)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, srv.State())
	assert.Equal(t, 1, adapter.stopCount())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unbound", StateUnbound.String())
	assert.Equal(t, "bound", StateBound.String())
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
