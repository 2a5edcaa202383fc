package pipeline

import "sync"

// ProgressFunc receives the weighted global percentage [0,100] and a
// human-readable stage message.
type ProgressFunc func(percent float64, message string)

// reporter turns per-stage local fractions into global percentages. Chunk
// workers report concurrently, so emission is serialized; the global
// percentage never moves backwards.
type reporter struct {
	sink ProgressFunc

	mu   sync.Mutex
	last float64
}

func newReporter(sink ProgressFunc) *reporter {
	return &reporter{sink: sink}
}

// emit publishes an absolute global percentage.
func (r *reporter) emit(percent float64, message string) {
	if r.sink == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if percent < r.last {
		percent = r.last
	}
	r.last = percent
	r.sink(percent, message)
}

// stage returns a sink for one stage occupying [base, base+span) of the
// global range; the stage reports its own 0-100 locally.
func (r *reporter) stage(base, span float64) func(local float64, message string) {
	return func(local float64, message string) {
		if local < 0 {
			local = 0
		}
		if local > 100 {
			local = 100
		}
		r.emit(base+span*local/100, message)
	}
}
