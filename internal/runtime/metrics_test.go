package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

func gatheredCounter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestDispatchMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)
	require.NoError(t, m.Register())

	mw := m.Middleware()
	info := testDispatchInfo()

	require.NoError(t, mw(func(context.Context, DispatchInfo) error { return nil })(context.Background(), info))
	require.NoError(t, mw(func(context.Context, DispatchInfo) error { return nil })(context.Background(), info))
	assert.Error(t, mw(func(context.Context, DispatchInfo) error { return errors.New("boom") })(context.Background(), info))
	assert.Error(t, mw(func(context.Context, DispatchInfo) error {
		return fmt.Errorf("%w: measure", errspkg.ErrNoResponse)
	})(context.Background(), info))

	base := map[string]string{"contract": "measure", "kind": contract.KindOperation.String()}
	withOutcome := func(o string) map[string]string {
		out := map[string]string{"outcome": o}
		for k, v := range base {
			out[k] = v
		}
		return out
	}
	assert.Equal(t, 2.0, gatheredCounter(t, reg, "contractflow_dispatch_total", withOutcome(OutcomeSuccess)))
	assert.Equal(t, 1.0, gatheredCounter(t, reg, "contractflow_dispatch_total", withOutcome(OutcomeFailure)))
	assert.Equal(t, 1.0, gatheredCounter(t, reg, "contractflow_dispatch_total", withOutcome(OutcomeNoReply)))
}

func TestDispatchMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	// A second collector set with the same names is tolerated.
	other := NewDispatchMetrics(reg)
	assert.NoError(t, other.Register())
}

func TestDispatchMetrics_Reset(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)
	require.NoError(t, m.Register())

	m.Observe(testDispatchInfo(), 0, nil)
	m.Reset()

	assert.Zero(t, gatheredCounter(t, reg, "contractflow_dispatch_total", map[string]string{"outcome": OutcomeSuccess}))
}
