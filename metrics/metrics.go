// Package metrics exposes Prometheus collectors for the auth layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hr_auth"

// Collector implements the observer hooks of the auth service, the
// authentication filter, the OAuth2 exchanger, the identity cache and
// the login rate limiter. A nil *Collector is a no-op.
type Collector struct {
	filterOutcomes *prometheus.CounterVec
	authResults    *prometheus.CounterVec
	oauth2Results  *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	rateLimited    prometheus.Counter
	users          *prometheus.GaugeVec
	usersTotal     prometheus.Gauge
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		filterOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_requests_total",
			Help:      "Requests seen by the authentication filter, by outcome.",
		}, []string{"outcome"}),
		authResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Credential operations, by operation and result.",
		}, []string{"operation", "result"}),
		oauth2Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth2_exchanges_total",
			Help:      "OAuth2 exchanges, by provider and result.",
		}, []string{"provider", "result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_cache_lookups_total",
			Help:      "Identity cache lookups, by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the login rate limiter.",
		}),
		users: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Registered users, by role.",
		}, []string{"role"}),
		usersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users_total",
			Help:      "Registered users.",
		}),
	}

	reg.MustRegister(
		c.filterOutcomes,
		c.authResults,
		c.oauth2Results,
		c.cacheLookups,
		c.rateLimited,
		c.users,
		c.usersTotal,
	)

	return c
}

func (c *Collector) ObserveFilterOutcome(outcome string) {
	if c == nil {
		return
	}
	c.filterOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveAuth(operation, result string) {
	if c == nil {
		return
	}
	c.authResults.WithLabelValues(operation, result).Inc()
}

func (c *Collector) ObserveOAuth2(provider, result string) {
	if c == nil {
		return
	}
	c.oauth2Results.WithLabelValues(provider, result).Inc()
}

func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues("hit").Inc()
}

func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}

// RateLimited matches the limiter's OnLimited hook.
func (c *Collector) RateLimited(string) {
	if c == nil {
		return
	}
	c.rateLimited.Inc()
}

// SetUserCounts replaces the per role gauges with counts.
func (c *Collector) SetUserCounts(byRole map[string]int, total int) {
	if c == nil {
		return
	}
	c.users.Reset()
	for role, n := range byRole {
		c.users.WithLabelValues(role).Set(float64(n))
	}
	c.usersTotal.Set(float64(total))
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
