package ingest

import (
	"log/slog"
	"strconv"
	"strings"

	"cprqa/internal/shared/util"
)

const colPauseDuration = "Total pause duration (sec)"

// parsePauses aggregates the pause durations. A missing column or an
// unreadable file yields all-nil stats, never zeros.
func parsePauses(content string, threshold float64) PauseStats {
	t, err := readTable(content)
	if err != nil {
		slog.Warn("pause file unreadable", "error", err)
		return PauseStats{}
	}
	if !t.hasColumn(colPauseDuration) {
		return PauseStats{}
	}

	var durations []float64
	for _, row := range t.rows {
		raw, ok := t.cell(row, colPauseDuration)
		if !ok {
			return PauseStats{}
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !finite(v) {
			slog.Warn("skipping non-numeric pause duration", "value", raw)
			continue
		}
		durations = append(durations, v)
	}
	if len(durations) == 0 {
		return PauseStats{}
	}

	var sum, longest float64
	over := 0
	for i, d := range durations {
		sum += d
		if i == 0 || d > longest {
			longest = d
		}
		if d > threshold {
			over++
		}
	}
	count := len(durations)
	mean := util.Round(sum/float64(count), 2)
	longest = util.Round(longest, 2)
	return PauseStats{Count: &count, Mean: &mean, Max: &longest, OverThreshold: &over}
}
