// Package analysis summarises how long finished streams took.
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/unkn0wn-root/hydro/internal/stream"
)

type LatencyStats struct {
	Count int
	// Failed counts streams that ended in error or were cancelled.
	Failed      int
	Min         time.Duration
	Max         time.Duration
	Mean        time.Duration
	Median      time.Duration
	Percentiles map[int]time.Duration
}

// Latency computes stats over the elapsed time of finished streams. Open
// streams are skipped.
func Latency(summaries []stream.Summary, percentiles ...int) LatencyStats {
	durations := make([]time.Duration, 0, len(summaries))
	failed := 0
	for _, s := range summaries {
		if s.State == stream.StateOpen || s.EndedAt.IsZero() {
			continue
		}
		if s.State != stream.StateDone {
			failed++
		}
		durations = append(durations, s.EndedAt.Sub(s.StartedAt))
	}
	stats := ComputeLatencyStats(durations, percentiles)
	stats.Failed = failed
	return stats
}

func ComputeLatencyStats(durations []time.Duration, percentiles []int) LatencyStats {
	stats := LatencyStats{}
	count := len(durations)
	if count == 0 {
		return stats
	}

	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	stats.Count = count
	stats.Min = sorted[0]
	stats.Max = sorted[count-1]

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	stats.Mean = sum / time.Duration(count)

	if count%2 == 0 {
		stats.Median = (sorted[count/2-1] + sorted[count/2]) / 2
	} else {
		stats.Median = sorted[count/2]
	}

	if len(percentiles) > 0 {
		stats.Percentiles = make(map[int]time.Duration, len(percentiles))
		for _, p := range percentiles {
			stats.Percentiles[p] = nearestRank(sorted, p)
		}
	}
	return stats
}

// nearestRank picks the p-th percentile of sorted values.
func nearestRank(sorted []time.Duration, p int) time.Duration {
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(p)/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
