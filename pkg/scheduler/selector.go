package scheduler

// History bounds the performance-history buffer spec.md §4.7 describes:
// at most 50 records, FIFO discard of the oldest.
const historyLimit = 50

// Observation is one completed batch's recorded performance, the raw
// material the history/stats buffers are built from.
type Observation struct {
	Mode           Mode
	FileCount      int
	MemoryFraction float64
	SystemLoad     float64
	Efficiency     float64 // [0,100]
}

// modeStats tracks per-mode running statistics: run count, average/best/
// worst efficiency, and a rolling window of the last 10 runs.
type modeStats struct {
	runs    int
	sum     float64
	best    float64
	worst   float64
	window  []float64
}

func (s *modeStats) record(efficiency float64) {
	if s.runs == 0 {
		s.best = efficiency
		s.worst = efficiency
	} else {
		if efficiency > s.best {
			s.best = efficiency
		}
		if efficiency < s.worst {
			s.worst = efficiency
		}
	}
	s.runs++
	s.sum += efficiency
	s.window = append(s.window, efficiency)
	if len(s.window) > 10 {
		s.window = s.window[len(s.window)-10:]
	}
}

func (s *modeStats) average() float64 {
	if s.runs == 0 {
		return 0
	}
	return s.sum / float64(s.runs)
}

// History is the scheduler's performance-history store: a bounded
// ring of Observations plus per-mode running statistics, both pure data
// that BestHistoricalMode and ShouldSwitchMode consult without
// side effects (spec.md §8: "SelectOptimalMode returns the same mode,
// a pure function of its inputs").
type History struct {
	records []Observation
	stats   map[Mode]*modeStats
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{stats: make(map[Mode]*modeStats)}
}

// Record appends obs to the history, evicting the oldest record once the
// 50-record cap is exceeded, and updates obs.Mode's running statistics.
func (h *History) Record(obs Observation) {
	h.records = append(h.records, obs)
	if len(h.records) > historyLimit {
		h.records = h.records[len(h.records)-historyLimit:]
	}

	stats, ok := h.stats[obs.Mode]
	if !ok {
		stats = &modeStats{}
		h.stats[obs.Mode] = stats
	}
	stats.record(obs.Efficiency)
}

// similarRecords returns the subset of history similar to the given
// file count, memory fraction, and system load, per spec.md §4.7 step 4:
// file-count ±30%, memory ±20 percentage points, load ±0.3.
func (h *History) similarRecords(fileCount int, memFraction, load float64) []Observation {
	var out []Observation
	lowCount := float64(fileCount) * 0.7
	highCount := float64(fileCount) * 1.3

	for _, r := range h.records {
		if float64(r.FileCount) < lowCount || float64(r.FileCount) > highCount {
			continue
		}
		if abs(r.MemoryFraction-memFraction) > 0.20 {
			continue
		}
		if abs(r.SystemLoad-load) > 0.3 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// BestHistoricalMode returns the mode with the highest average
// efficiency among similar records, and a confidence score in [0,1]
// derived from how many similar samples back it (capped at 1.0 once 5
// or more agree). ok is false when there are no similar records.
func (h *History) BestHistoricalMode(fileCount int, memFraction, load float64) (mode Mode, confidence float64, ok bool) {
	similar := h.similarRecords(fileCount, memFraction, load)
	if len(similar) == 0 {
		return "", 0, false
	}

	totals := make(map[Mode]float64)
	counts := make(map[Mode]int)
	for _, r := range similar {
		totals[r.Mode] += r.Efficiency
		counts[r.Mode]++
	}

	var bestMode Mode
	bestAvg := -1.0
	for m, total := range totals {
		avg := total / float64(counts[m])
		if avg > bestAvg {
			bestAvg = avg
			bestMode = m
		}
	}

	confidence = float64(counts[bestMode]) / 5.0
	if confidence > 1.0 {
		confidence = 1.0
	}

	return bestMode, confidence, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SelectInitialMode picks the execution strategy per spec.md §4.7's
// table, given the request's log count and the current resource
// sample. It is a pure function of its arguments.
func SelectInitialMode(logCount int, sample ResourceSample) Mode {
	load := sample.SystemLoad()

	switch {
	case logCount <= 3 || sample.MemoryFraction >= 0.90 || sample.CPUFraction >= 0.95:
		return ModeSequential
	case logCount <= 20 && load < 0.6:
		return ModeParallel
	case logCount > 50 && load < 0.7:
		return ModeProducerConsumer
	default:
		return ModeAdaptive
	}
}

// modeMultiplier is the baseline-worker-count multiplier per mode,
// spec.md §4.7.
func modeMultiplier(mode Mode) float64 {
	switch mode {
	case ModeSequential:
		return 1.0
	case ModeParallel:
		return 1.5
	case ModeProducerConsumer:
		return 2.0
	case ModeAdaptive:
		return 1.8
	default:
		return 1.0
	}
}

// WorkerCount computes the worker count for mode, per spec.md §4.7:
// baseline = hwThreads × multiplier, halved under memory or CPU
// pressure, clipped to [1, hwThreads×2], never exceeding logCount.
func WorkerCount(mode Mode, hwThreads int, sample ResourceSample, logCount int) int {
	baseline := float64(hwThreads) * modeMultiplier(mode)

	if sample.MemoryFraction >= 0.80 || sample.CPUFraction >= 0.90 {
		baseline /= 2
	}

	count := int(baseline)
	if count < 1 {
		count = 1
	}
	ceiling := hwThreads * 2
	if count > ceiling {
		count = ceiling
	}
	if count > logCount {
		count = logCount
	}
	if count < 1 {
		count = 1
	}
	return count
}

// BatchSize computes the batch size per spec.md §4.7: halved when
// memory > 60%, quartered when memory > 80%, clamped to [1,1000].
func BatchSize(baseline int, memFraction float64) int {
	size := baseline
	if memFraction > 0.80 {
		size /= 4
	} else if memFraction > 0.60 {
		size /= 2
	}
	if size < 1 {
		size = 1
	}
	if size > 1000 {
		size = 1000
	}
	return size
}

// Efficiency computes the [0,100] composite score spec.md §4.7 step 3
// defines: the mean of throughput-factor, memory-efficiency,
// cpu-efficiency, and success-rate, each already expressed in [0,100].
func Efficiency(throughputFactor, memoryEfficiency, cpuEfficiency, successRate float64) float64 {
	return (throughputFactor + memoryEfficiency + cpuEfficiency + successRate) / 4
}

// ShouldSwitchMode implements spec.md §4.7 step 4: below efficiency 80,
// consult history for the best-observed mode for similar conditions and
// switch if confidence is at least 0.7.
func ShouldSwitchMode(history *History, currentEfficiency float64, fileCount int, memFraction, load float64) (Mode, bool) {
	if currentEfficiency >= 80 {
		return "", false
	}
	mode, confidence, ok := history.BestHistoricalMode(fileCount, memFraction, load)
	if !ok || confidence < 0.7 {
		return "", false
	}
	return mode, true
}
