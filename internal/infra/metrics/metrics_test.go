package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ImageUploaded()
	m.ImageUploaded()
	m.ImageDeleted()
	m.UploadRejected("size")
	m.MediaDeleteFailed()

	if got := testutil.ToFloat64(m.uploads); got != 2 {
		t.Errorf("expected 2 uploads got %v", got)
	}
	if got := testutil.ToFloat64(m.deletes); got != 1 {
		t.Errorf("expected 1 delete got %v", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("size")); got != 1 {
		t.Errorf("expected 1 rejection got %v", got)
	}
	if got := testutil.ToFloat64(m.mediaDeleteFailed); got != 1 {
		t.Errorf("expected 1 media failure got %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 4 {
		t.Errorf("expected 4 metric families got %d (%v)", n, err)
	}
}
