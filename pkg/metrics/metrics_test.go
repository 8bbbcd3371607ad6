package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_total", "test counter")
	labels := Labels{"channel": "0"}

	if c.Get(labels) != 0 {
		t.Error("fresh counter not zero")
	}
	c.Inc(labels)
	c.Add(labels, 4)
	if got := c.Get(labels); got != 5 {
		t.Errorf("counter = %d, want 5", got)
	}
	// other label sets are independent
	if c.Get(Labels{"channel": "1"}) != 0 {
		t.Error("labels not independent")
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("test_total", "test counter")
	labels := Labels{"channel": "0"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc(labels)
			}
		}()
	}
	wg.Wait()
	if got := c.Get(labels); got != 8000 {
		t.Errorf("counter = %d, want 8000", got)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "test gauge")
	g.Set(nil, 42)
	if got := g.Get(nil); got != 42 {
		t.Errorf("gauge = %d, want 42", got)
	}
	g.Set(nil, -7)
	if got := g.Get(nil); got != -7 {
		t.Errorf("gauge = %d, want -7", got)
	}
}

func TestRegistryRender(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("cycles_total", "ticks")
	g := NewGauge("last_code", "most recent code")
	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(g); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(NewCounter("cycles_total", "dup")); err == nil {
		t.Error("duplicate name accepted")
	}

	c.Add(Labels{"channel": "1"}, 3)
	g.Set(nil, 123)

	out := r.Render()
	for _, want := range []string{
		"# TYPE cycles_total counter",
		`cycles_total{channel="1"} 3`,
		"# TYPE last_code gauge",
		"last_code 123",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestHostMetrics(t *testing.T) {
	hm := NewHostMetrics()
	hm.CodeClamped.Inc(ChannelLabels(2))
	hm.Cycles.Add(nil, 10)

	out := hm.Registry().Render()
	if !strings.Contains(out, `quantizer_code_clamped_total{channel="2"} 1`) {
		t.Errorf("clamp counter missing:\n%s", out)
	}
	if !strings.Contains(out, "quantizer_cycles_total 10") {
		t.Errorf("cycle counter missing:\n%s", out)
	}
}

func TestMetricsHandler(t *testing.T) {
	hm := NewHostMetrics()
	hm.Cycles.Inc(nil)
	s := NewServer(hm.Registry(), ":0")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	s.handleMetrics(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "quantizer_cycles_total 1") {
		t.Errorf("body missing counter:\n%s", w.Body.String())
	}

	// only GET is served
	req = httptest.NewRequest("POST", "/metrics", nil)
	w = httptest.NewRecorder()
	s.handleMetrics(w, req)
	if w.Code != 405 {
		t.Errorf("POST status = %d, want 405", w.Code)
	}
}
