package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRunCountsByResult(t *testing.T) {
	m := New()

	m.JobRun("snapshot", time.Millisecond, nil)
	m.JobRun("snapshot", time.Millisecond, nil)
	m.JobRun("snapshot", time.Millisecond, errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("snapshot", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("snapshot", "error")))
}

func TestMessageCounters(t *testing.T) {
	m := New()

	m.MessagesSent("broadcast", 3)
	m.MessagesSent("direct", 1)
	m.MessagesDeleted("cleanup", 0)
	m.MessagesDeleted("user", 2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("broadcast")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("direct")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesDeleted.WithLabelValues("user")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.messagesDeleted.WithLabelValues("cleanup")))
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.JobRun("snapshot", time.Second, nil)
		m.MessagesSent("direct", 1)
		m.MessagesDeleted("user", 1)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.MessagesSent("direct", 1)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `proxymail_messages_sent_total{kind="direct"} 1`)
}
