package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRegistry is a Registry backed by one prometheus.Counter per key
// in Keys, all registered under a single prometheus.Registerer at
// construction time. Counter names are derived from the dotted metric keys
// ("mixer.send.blocks" -> "bulkmixer_mixer_send_blocks").
type PrometheusRegistry struct {
	counters map[string]prometheus.Counter
}

// NewPrometheusRegistry creates a counter for every key in Keys and
// registers them all with reg.
func NewPrometheusRegistry(reg prometheus.Registerer) *PrometheusRegistry {
	r := &PrometheusRegistry{counters: make(map[string]prometheus.Counter, len(Keys))}
	for _, key := range Keys {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Name: promName(key),
			Help: "bulkmixer counter for " + key,
		})
		reg.MustRegister(c)
		r.counters[key] = c
	}
	return r
}

// Update adds delta to the counter identified by key. It panics if key is
// not one of Keys, the same way a typo'd prometheus metric name would panic
// on an unregistered label combination — callers only ever pass the
// constants this package defines.
func (r *PrometheusRegistry) Update(key string, delta int64) {
	c, ok := r.counters[key]
	if !ok {
		panic("metrics: unknown key " + key)
	}
	c.Add(float64(delta))
}

func promName(key string) string {
	return "bulkmixer_" + strings.ReplaceAll(key, ".", "_")
}
