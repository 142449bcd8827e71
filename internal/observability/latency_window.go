package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// StageLatency summarizes one latency measure over the window.
type StageLatency struct {
	Samples int     `json:"samples"`
	LastMS  float64 `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	P99MS   float64 `json:"p99_ms"`
}

// LatencySnapshot describes the most recent finished tasks. Outcomes count
// only tasks still inside the window.
type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Tasks       int            `json:"tasks"`
	FirstEvent  *StageLatency  `json:"first_event,omitempty"`
	TaskTotal   *StageLatency  `json:"task_total,omitempty"`
	Outcomes    map[string]int `json:"outcomes"`
}

type taskSample struct {
	outcome      string
	totalMS      float64
	firstEventMS float64
	hasFirst     bool
}

// latencyWindow keeps the last size finished tasks.
type latencyWindow struct {
	mu      sync.Mutex
	size    int
	samples []taskSample
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{size: size}
}

func (w *latencyWindow) add(s taskSample) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, s)
	if over := len(w.samples) - w.size; over > 0 {
		w.samples = append([]taskSample(nil), w.samples[over:]...)
	}
}

func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	samples := append([]taskSample(nil), w.samples...)
	w.mu.Unlock()

	var first, total []float64
	outcomes := make(map[string]int)
	for _, s := range samples {
		total = append(total, s.totalMS)
		if s.hasFirst {
			first = append(first, s.firstEventMS)
		}
		outcomes[s.outcome]++
	}

	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Tasks:       len(samples),
		FirstEvent:  summarize(first),
		TaskTotal:   summarize(total),
		Outcomes:    outcomes,
	}
}

// summarize expects values in arrival order; nil means no samples.
func summarize(values []float64) *StageLatency {
	if len(values) == 0 {
		return nil
	}
	last := values[len(values)-1]
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return &StageLatency{
		Samples: len(sorted),
		LastMS:  round2(last),
		AvgMS:   round2(sum / float64(len(sorted))),
		P50MS:   round2(nearestRank(sorted, 50)),
		P95MS:   round2(nearestRank(sorted, 95)),
		P99MS:   round2(nearestRank(sorted, 99)),
	}
}

func nearestRank(sorted []float64, pct int) float64 {
	rank := int(math.Ceil(float64(pct) / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
