//go:build !integration

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncFallback_NormalizesLabel(t *testing.T) {
	before := testutil.ToFloat64(fallbacksTotal.WithLabelValues("synthesizer"))
	IncFallback("  Synthesizer ")
	after := testutil.ToFloat64(fallbacksTotal.WithLabelValues("synthesizer"))
	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestObserveJobFinished_DefaultsProvenance(t *testing.T) {
	before := testutil.ToFloat64(jobsFinishedTotal.WithLabelValues("failed", "none"))
	ObserveJobFinished("failed", "", time.Second)
	after := testutil.ToFloat64(jobsFinishedTotal.WithLabelValues("failed", "none"))
	if after-before != 1 {
		t.Errorf("expected failed/none to grow by 1, got %v", after-before)
	}
}

func TestAddCitationsDropped_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(citationsDropped)
	AddCitationsDropped(0)
	AddCitationsDropped(2)
	if got := testutil.ToFloat64(citationsDropped) - before; got != 2 {
		t.Errorf("expected +2, got %v", got)
	}
}

func TestMustRegister_Idempotent(t *testing.T) {
	MustRegister()
	MustRegister()
}
