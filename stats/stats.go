// Package stats exposes the runtime's internal counters to Prometheus:
// dispatcher queue depth, the dropped-message counter, and harbor frame
// traffic. The teacher depends on prometheus/client_golang for its own
// metrics surface; nothing in the retrieved sources exercises it
// directly, so this package follows the library's own documented
// idiom (a Registry plus typed collectors) rather than a teacher call
// site — see DESIGN.md.
package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner owns every collector this process registers and the optional
// HTTP endpoint that serves them (spec.md SPEC_FULL §6 "statsaddr").
type Runner struct {
	reg *prometheus.Registry

	QueueDepth   prometheus.Gauge
	Dropped      prometheus.Counter
	FramesIn     prometheus.Counter
	FramesOut    prometheus.Counter
	SlaveTornDown prometheus.Counter
}

func New() *Runner {
	r := &Runner{reg: prometheus.NewRegistry()}

	r.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shaco", Subsystem: "dispatch", Name: "queue_depth",
		Help: "Number of messages currently queued in the dispatcher.",
	})
	r.Dropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shaco", Subsystem: "dispatch", Name: "dropped_total",
		Help: "Messages dropped for an unresolvable destination handle.",
	})
	r.FramesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shaco", Subsystem: "harbor", Name: "frames_in_total",
		Help: "Harbor frames successfully decoded from slave connections.",
	})
	r.FramesOut = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shaco", Subsystem: "harbor", Name: "frames_out_total",
		Help: "Harbor frames encoded and handed to the reactor for a slave.",
	})
	r.SlaveTornDown = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shaco", Subsystem: "harbor", Name: "slave_teardowns_total",
		Help: "Slave connections torn down after a socket error or a malformed frame.",
	})

	r.reg.MustRegister(r.QueueDepth, r.Dropped, r.FramesIn, r.FramesOut, r.SlaveTornDown)
	return r
}

// IncDropped satisfies dispatch's optional dropCounter hook.
func (r *Runner) IncDropped() { r.Dropped.Inc() }

// IncFramesIn, IncFramesOut, and IncSlaveTornDown satisfy harbor's
// optional frame-counter hook.
func (r *Runner) IncFramesIn()      { r.FramesIn.Inc() }
func (r *Runner) IncFramesOut()     { r.FramesOut.Inc() }
func (r *Runner) IncSlaveTornDown() { r.SlaveTornDown.Inc() }

// Serve starts the metrics HTTP endpoint on addr; a caller typically
// runs this in its own goroutine since it blocks until the listener
// fails or is closed (statsaddr="" in the caller disables this
// entirely — see cmd/shacod).
func (r *Runner) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
