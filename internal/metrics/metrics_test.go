package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCommit(t *testing.T) {
	success := testutil.ToFloat64(CatalogCommits.WithLabelValues("success"))
	failure := testutil.ToFloat64(CatalogCommits.WithLabelValues("failure"))

	RecordCommit(nil)
	RecordCommit(errors.New("insert failed"))
	RecordCommit(nil)

	if got := testutil.ToFloat64(CatalogCommits.WithLabelValues("success")) - success; got != 2 {
		t.Fatalf("success delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CatalogCommits.WithLabelValues("failure")) - failure; got != 1 {
		t.Fatalf("failure delta = %v, want 1", got)
	}
}

func TestRecordSweep(t *testing.T) {
	deleted := testutil.ToFloat64(RetentionDeleted)
	failed := testutil.ToFloat64(RetentionFailures)

	RecordSweep(20*time.Millisecond, 3, 1)

	if got := testutil.ToFloat64(RetentionDeleted) - deleted; got != 3 {
		t.Fatalf("deleted delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(RetentionFailures) - failed; got != 1 {
		t.Fatalf("failed delta = %v, want 1", got)
	}
}

func TestRecordSearch(t *testing.T) {
	before := testutil.ToFloat64(SearchRequests.WithLabelValues("direct"))
	RecordSearch("direct")
	if got := testutil.ToFloat64(SearchRequests.WithLabelValues("direct")) - before; got != 1 {
		t.Fatalf("direct delta = %v, want 1", got)
	}
}
