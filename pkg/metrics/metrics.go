// Package metrics is a small in-process metrics registry rendered in the
// Prometheus text exposition format. It covers the counters, gauges, and
// latency histograms the services need without pulling in a client library;
// anything that scrapes /metrics reads it as plain Prometheus output.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are latency buckets in seconds, used when a histogram is
// registered with nil buckets.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter only goes up.
type Counter struct{ n atomic.Int64 }

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Add(d int64)  { c.n.Add(d) }
func (c *Counter) Value() int64 { return c.n.Load() }

// Gauge is a settable instantaneous value.
type Gauge struct{ n atomic.Int64 }

func (g *Gauge) Set(v int64)  { g.n.Store(v) }
func (g *Gauge) Inc()         { g.n.Add(1) }
func (g *Gauge) Dec()         { g.n.Add(-1) }
func (g *Gauge) Value() int64 { return g.n.Load() }

// Histogram accumulates observations into fixed upper-bound buckets.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	hits   []uint64 // per-bucket, non-cumulative
	sum    float64
	total  uint64
}

func newHistogram(bounds []float64) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	return &Histogram{bounds: b, hits: make([]uint64, len(b))}
}

// Observe records one value. Values above the largest bound only count
// toward the +Inf bucket.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.total++
	for i, bound := range h.bounds {
		if v <= bound {
			h.hits[i]++
			return
		}
	}
}

// Since observes the seconds elapsed from t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

type kind int

const (
	kindCounter kind = iota
	kindGauge
	kindHistogram
)

func (k kind) String() string {
	return [...]string{"counter", "gauge", "histogram"}[k]
}

// family groups all label variants of one metric name.
type family struct {
	name   string
	help   string
	kind   kind
	series map[string]any // full series name (with labels) to instrument
}

// Registry owns metric families and renders them. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	order    []*family
	families map[string]*family
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

// Counter registers or fetches a counter. The name may carry baked-in
// labels built with WithLabels; each label combination is its own series.
func (r *Registry) Counter(name, help string) *Counter {
	return lookup(r, name, help, kindCounter, func() *Counter { return &Counter{} })
}

// Gauge registers or fetches a gauge.
func (r *Registry) Gauge(name, help string) *Gauge {
	return lookup(r, name, help, kindGauge, func() *Gauge { return &Gauge{} })
}

// Histogram registers or fetches a histogram. Nil buckets take
// DefaultBuckets; buckets are fixed at first registration.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return lookup(r, name, help, kindHistogram, func() *Histogram { return newHistogram(buckets) })
}

func lookup[T any](r *Registry, name, help string, k kind, create func() T) T {
	base := baseName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	fam := r.families[base]
	if fam == nil {
		fam = &family{name: base, help: help, kind: k, series: make(map[string]any)}
		r.families[base] = fam
		r.order = append(r.order, fam)
	}
	if inst, ok := fam.series[name].(T); ok {
		return inst
	}
	inst := create()
	fam.series[name] = inst
	return inst
}

// WithLabels bakes label pairs into a metric name, producing
// `name{k="v",...}`. Odd or empty pairs leave the name untouched.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i < len(kvs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", kvs[i], kvs[i+1])
	}
	b.WriteByte('}')
	return b.String()
}

func baseName(name string) string {
	if i := strings.IndexByte(name, '{'); i >= 0 {
		return name[:i]
	}
	return name
}

// seriesLabels returns the label body of a series name, without braces.
func seriesLabels(name string) string {
	i := strings.IndexByte(name, '{')
	if i < 0 {
		return ""
	}
	return name[i+1 : len(name)-1]
}

// Render produces the whole registry in Prometheus text format, families in
// registration order and series sorted within each family.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, fam := range r.order {
		if fam.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", fam.name, fam.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", fam.name, fam.kind)

		names := make([]string, 0, len(fam.series))
		for n := range fam.series {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, n := range names {
			switch inst := fam.series[n].(type) {
			case *Counter:
				fmt.Fprintf(&b, "%s %d\n", n, inst.Value())
			case *Gauge:
				fmt.Fprintf(&b, "%s %d\n", n, inst.Value())
			case *Histogram:
				renderHistogram(&b, fam.name, seriesLabels(n), inst)
			}
		}
	}
	return b.String()
}

func renderHistogram(b *strings.Builder, name, labels string, h *Histogram) {
	h.mu.Lock()
	bounds := h.bounds
	hits := append([]uint64(nil), h.hits...)
	sum, total := h.sum, h.total
	h.mu.Unlock()

	extra := ""
	suffix := ""
	if labels != "" {
		extra = "," + labels
		suffix = "{" + labels + "}"
	}
	var cum uint64
	for i, bound := range bounds {
		cum += hits[i]
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"%s} %d\n", name, bound, extra, cum)
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"%s} %d\n", name, extra, total)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, total)
}

// Handler serves the rendered registry as a /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}
