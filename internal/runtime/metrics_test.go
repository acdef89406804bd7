package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/replybus/internal/runtime/config"
)

func metricValue(t *testing.T, reg *prometheus.Registry, name string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue(), true
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func TestBusCountersAreExported(t *testing.T) {
	reg := prometheus.NewRegistry()
	conf := testConfig()
	conf.MetricsEnabled = true
	b, fake := newTestBus(t, conf, Dependencies{Registerer: reg})

	require.NoError(t, b.Send("billing").OfType("charge").Complete(context.Background(), func([]byte, error) {}))
	fake.nextSent(t)
	require.NoError(t, b.OnEnvelope(context.Background(), request("unknown", nil)))

	sent, ok := metricValue(t, reg, "replybus_messages_sent_total")
	require.True(t, ok)
	assert.Equal(t, 1.0, sent)

	noSubs, ok := metricValue(t, reg, "replybus_messages_no_subscribers_total")
	require.True(t, ok)
	assert.Equal(t, 1.0, noSubs)

	pending, ok := metricValue(t, reg, "replybus_requests_pending")
	require.True(t, ok)
	assert.Equal(t, 1.0, pending)

	require.NoError(t, b.Close())
	_, ok = metricValue(t, reg, "replybus_messages_sent_total")
	assert.False(t, ok, "collector should be unregistered on close")
}

func TestRegisterMetricsToleratesDuplicateService(t *testing.T) {
	reg := prometheus.NewRegistry()
	conf := testConfig()
	conf.MetricsEnabled = true

	first, _ := newTestBus(t, conf, Dependencies{Registerer: reg})
	second, _ := newTestBus(t, conf, Dependencies{Registerer: reg})

	assert.NotNil(t, first.collector)
	assert.Nil(t, second.collector)
}

func TestMetricsEndpointIsMounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	conf := &configpkg.Config{ServiceName: "orders", InstanceID: "i1", MetricsEnabled: true, MetricsPort: 9464}
	b, _ := newTestBus(t, conf, Dependencies{Registerer: reg})

	require.NotNil(t, b.http)
	mux := b.http.muxes[9464]
	require.NotNil(t, mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "replybus_messages_received_total")
}

func TestHTTPServersStartAndStop(t *testing.T) {
	b, _ := newTestBus(t, nil, Dependencies{})
	assert.NoError(t, b.stopHTTPServers())

	b.RegisterHTTPHandler(0, "/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	b.startHTTPServers()
	require.Len(t, b.http.running, 1)
	b.startHTTPServers()
	assert.Len(t, b.http.running, 1)

	assert.NoError(t, b.stopHTTPServers())
	assert.Empty(t, b.http.running)
}
