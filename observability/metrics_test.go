package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"tipledger/core/types"
)

func TestEventMetricsPublish(t *testing.T) {
	m := Events()
	require.NoError(t, m.Publish(&types.Event{
		Type:       "tipvault.tip",
		Attributes: map[string]string{"amount": "150000", "feeAmount": "750"},
	}))
	require.NoError(t, m.Publish(nil))

	require.Equal(t, float64(1), testutil.ToFloat64(m.emitted.WithLabelValues("tipvault.tip")))
	require.Equal(t, float64(150000), testutil.ToFloat64(m.volume.WithLabelValues("tipvault.tip", "amount")))
	require.Equal(t, float64(750), testutil.ToFloat64(m.volume.WithLabelValues("tipvault.tip", "feeAmount")))

	m.RecordDropped(3)
	require.Equal(t, float64(3), testutil.ToFloat64(m.dropped))
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("tip_send", 0, time.Millisecond)
	m.Observe("tip_send", -32010, time.Millisecond)
	m.RecordThrottle("rate_limit")

	require.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("tip_send", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("tip_send", "-32010")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.throttles.WithLabelValues("rate_limit")))
}
