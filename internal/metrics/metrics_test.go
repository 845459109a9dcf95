package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
	})

	before := testutil.ToFloat64(bookingsCreated)
	IncBookingCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(bookingsCreated))

	IncConflict("storage")
	IncConflict("storage")
	assert.GreaterOrEqual(t, testutil.ToFloat64(bookingConflicts.WithLabelValues("storage")), 2.0)

	IncTransition("pending", "confirmed")
	assert.GreaterOrEqual(t, testutil.ToFloat64(bookingTransitions.WithLabelValues("pending", "confirmed")), 1.0)

	IncReconciliation("refund", "error")
	assert.GreaterOrEqual(t, testutil.ToFloat64(reconciliations.WithLabelValues("refund", "error")), 1.0)
}
