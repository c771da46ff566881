package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveOperation("place", "OK", 10*time.Millisecond)
	r.ObserveOperation("place", "OK", 20*time.Millisecond)
	r.ObserveOperation("place", "SLOT_OCCUPIED", time.Millisecond)
	r.AdvisoryFailure("websocket")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues("place", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("place", "SLOT_OCCUPIED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.advisoryFailures.WithLabelValues("websocket")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}
