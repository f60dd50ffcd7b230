package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRecordAgainstIsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordPick("auto")
	m.RecordPick("auto")
	m.SetBundleCount("NORMAL", 3)
	m.ObserveTick("queue", 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var sawPicks bool
	for _, fam := range families {
		if fam.GetName() != "bundlequeue_scheduler_picks_total" {
			continue
		}
		sawPicks = true
		for _, metric := range fam.GetMetric() {
			if metric.GetCounter().GetValue() != 2 {
				t.Fatalf("expected 2 auto picks, got %v", metric.GetCounter())
			}
		}
	}
	if !sawPicks {
		t.Fatal("expected the scheduler picks counter to be registered")
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordPick("auto")
	m.SetBundleCount("LOW", 1)
	m.ObserveTick("queue", time.Millisecond)
}
