package fit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects fit statistics. A nil *Metrics records nothing.
type Metrics struct {
	fits       *prometheus.CounterVec
	iterations prometheus.Histogram
	rejections prometheus.Counter
}

// NewMetrics creates the fit collectors and registers them with reg when
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peakfit",
			Name:      "fits_total",
			Help:      "Completed fits by outcome.",
		}, []string{"outcome"}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "peakfit",
			Name:      "fit_iterations",
			Help:      "Optimizer iterations per completed fit.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250},
		}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peakfit",
			Name:      "step_rejections_total",
			Help:      "Optimizer steps rejected and retried with more damping.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.fits, m.iterations, m.rejections)
	}
	return m
}

func (m *Metrics) observeFit(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.fits.WithLabelValues(outcome).Inc()
	m.iterations.Observe(float64(iterations))
}

func (m *Metrics) observeReject() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}
