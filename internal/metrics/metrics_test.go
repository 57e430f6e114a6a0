package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Initialize())
}

func TestCountersIncrement(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.MessagesSentTotal)
	m.MessagesSentTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(m.MessagesSentTotal))

	m.UploadsTotal.WithLabelValues("avatar", "ok").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("avatar", "ok")))
}
