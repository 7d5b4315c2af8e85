package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics counts cart lifecycle transitions and invariant repairs.
type CartMetrics struct {
	created     *prometheus.CounterVec
	conflicts   prometheus.Counter
	merges      *prometheus.CounterVec
	deactivated *prometheus.CounterVec
	repairs     prometheus.Counter
}

// NewCartMetrics registers the cart counters on the provided registerer. A nil
// registerer yields no-op collectors.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carts_created_total",
		Help: "Carts created, by owner kind.",
	}, []string{"owner"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_create_conflicts_total",
		Help: "Cart creations that lost a race and re-fetched the winner.",
	})
	merges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_merges_total",
		Help: "Guest to user cart merges, by result.",
	}, []string{"result"})
	deactivated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carts_deactivated_total",
		Help: "Carts moved to inactive, by reason.",
	}, []string{"reason"})
	repairs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_invariant_repairs_total",
		Help: "Duplicate active carts deactivated during lookups.",
	})
	reg.MustRegister(created, conflicts, merges, deactivated, repairs)
	return &CartMetrics{
		created:     created,
		conflicts:   conflicts,
		merges:      merges,
		deactivated: deactivated,
		repairs:     repairs,
	}
}

func (c *CartMetrics) IncCreated(owner string) {
	if c == nil || c.created == nil {
		return
	}
	c.created.WithLabelValues(normalizeLabel(owner)).Inc()
}

func (c *CartMetrics) IncCreateConflict() {
	if c == nil || c.conflicts == nil {
		return
	}
	c.conflicts.Inc()
}

func (c *CartMetrics) IncMerge(result string) {
	if c == nil || c.merges == nil {
		return
	}
	c.merges.WithLabelValues(normalizeLabel(result)).Inc()
}

// AddDeactivated adds n deactivated carts under reason; n <= 0 is ignored.
func (c *CartMetrics) AddDeactivated(reason string, n int64) {
	if c == nil || c.deactivated == nil || n <= 0 {
		return
	}
	c.deactivated.WithLabelValues(normalizeLabel(reason)).Add(float64(n))
}

func (c *CartMetrics) AddInvariantRepairs(n int64) {
	if c == nil || c.repairs == nil || n <= 0 {
		return
	}
	c.repairs.Add(float64(n))
}
