package goSession

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricLoginSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricLoginSuccess); got != 8000 {
		t.Fatalf("counter = %d", got)
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.Inc(MetricLoginSuccess)
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled metrics counted %d", got)
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot must be empty")
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricResolveLatency, 3*time.Millisecond)
	m.Observe(MetricResolveLatency, time.Second)
	m.Observe(MetricLoginSuccess, time.Second)

	s := m.Snapshot()
	buckets := s.Histograms[MetricResolveLatency]
	if buckets[0] != 1 || buckets[histBucketCount-1] != 1 {
		t.Fatalf("unexpected buckets %v", buckets)
	}
	if _, ok := s.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("counter IDs must not carry histograms")
	}
	if _, ok := s.Counters[MetricResolveLatency]; ok {
		t.Fatal("histogram IDs must not appear as counters")
	}
}
