// Package metrics defines the counter registry every stage in the pipeline
// reports through: the thirteen keys named by the protocol's metrics
// contract, each a monotonically increasing count, updated by a single
// Update(key, delta) call rather than a richer per-shape Counter/Gauge/
// Timer/Histogram API, since every key this system reports is a plain
// monotonic count.
package metrics

// Keys is the complete set of counters this system reports. A Registry
// implementation may pre-create a collector per key at construction time so
// that Update never allocates on a miss.
var Keys = []string{
	"server.connect.count",
	"connection.buffer.count",
	"connection.buffer.size",
	"reader.line.count",
	"reader.line.size",
	"reader.mix.commands",
	"reader.mix.block.count",
	"reader.mix.block.size",
	"reader.mix.eof",
	"mixer.send.blocks",
	"mixer.send.commands",
	"distributor.blocks",
	"distributor.commands",
}

// Registry accumulates named counters. Update adds delta to the counter
// identified by key. Every key in Keys is only ever incremented;
// PrometheusRegistry panics on a negative delta, as a prometheus.Counter
// cannot decrease.
type Registry interface {
	Update(key string, delta int64)
}
