package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordReceiptRejectedDefaultsReason(t *testing.T) {
	before := testutil.ToFloat64(receiptRejections.WithLabelValues("unknown"))
	RecordReceiptRejected("")
	assert.Equal(t, before+1, testutil.ToFloat64(receiptRejections.WithLabelValues("unknown")))
}

func TestHandlerExposesReceiptCounters(t *testing.T) {
	RecordReceiptCommitted(3 * time.Millisecond)
	RecordCommitConflict()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "lapaksayur_receipts_committed_total"))
	assert.True(t, strings.Contains(body, "lapaksayur_receipts_commit_conflicts_total"))
}
