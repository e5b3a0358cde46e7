package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors(t *testing.T) {
	before := testutil.ToFloat64(pageRendersTotal.WithLabelValues("hit"))
	CaptureRender("hit")
	if got := testutil.ToFloat64(pageRendersTotal.WithLabelValues("hit")); got != before+1 {
		t.Errorf("expected %g hits, got %g", before+1, got)
	}

	IncrementInFlight()
	IncrementInFlight()
	DecrementInFlight()
	if got := testutil.ToFloat64(inFlightRequests); got != 1 {
		t.Errorf("expected 1 in flight, got %g", got)
	}
	DecrementInFlight()

	CaptureOutcome("success")
	CaptureRetry("upload")
	CaptureCheckpointWrite()
	CaptureExecutionMetrics("upload", 120*time.Millisecond)
}

func TestHandlerExposesMetrics(t *testing.T) {
	CaptureCheckpointWrite()
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "plansets_checkpoint_writes_total") {
		t.Error("expected checkpoint counter in exposition")
	}
}
