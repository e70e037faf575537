package ingest

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"cprqa/internal/shared/util"
)

// Column positions in the 17-column manikin export. Strict compliance is
// the primary figure; lenient columns are ignored.
const (
	simColDate          = 0
	simColProvider      = 1
	simColDuration      = 5
	simColDepth         = 6
	simColDepthPercent  = 7
	simColRate          = 9
	simColRatePercent   = 10
	simColNotes         = 16
	simFixedWidthMinCol = 12
)

var simHeaderWords = []string{"date", "provider", "name", "duration", "rate", "depth", "compliance"}

// SimulatedSession is one manikin training row. Metrics that the row does
// not carry stay absent.
type SimulatedSession struct {
	Date     string         `json:"date,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Notes    string         `json:"notes,omitempty"`
	Summary  SummaryMetrics `json:"summary"`
}

// Metrics wraps the session's summary values for storage beside bundle imports.
func (s SimulatedSession) Metrics() NormalizedMetrics {
	return NormalizedMetrics{Summary: s.Summary}
}

// ParseSimulated reads manikin session rows from CSV or pasted text. Each
// line is split on tabs when it has one, otherwise as a CSV record. Rows
// with at least 12 columns use fixed positions; shorter rows are matched by
// value range. A first line naming a known column is treated as a header.
func ParseSimulated(content string) ([]SimulatedSession, error) {
	if !utf8.ValidString(content) {
		return nil, ingestionError("Error decoding CSV content: invalid UTF-8 in input")
	}
	content = strings.TrimPrefix(content, utf8BOM)

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > 0 && looksLikeHeader(lines[0]) {
		lines = lines[1:]
	}

	var sessions []SimulatedSession
	for _, line := range lines {
		parts := splitSimulatedLine(line)
		if len(parts) < 3 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		s := SimulatedSession{Date: parts[simColDate], Provider: parts[simColProvider]}
		if len(parts) >= simFixedWidthMinCol {
			fixedColumns(&s, parts)
		} else {
			rangedColumns(&s, parts)
		}
		if s.Date != "" || s.Provider != "" {
			sessions = append(sessions, s)
		}
	}
	if len(sessions) == 0 {
		return nil, ingestionError("No valid data rows found in the input")
	}
	return sessions, nil
}

func looksLikeHeader(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range simHeaderWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func splitSimulatedLine(line string) []string {
	if strings.Contains(line, "\t") {
		return strings.Split(line, "\t")
	}
	records, err := readRecords(line)
	if err != nil || len(records) == 0 {
		return nil
	}
	return records[0]
}

func simNumber(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

func fixedColumns(s *SimulatedSession, parts []string) {
	at := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	if v, ok := simNumber(at(simColDuration)); ok {
		s.Summary.Duration = Number(math.Trunc(v))
	}
	if v, ok := simNumber(at(simColDepth)); ok {
		s.Summary.CompressionDepth = Number(util.Round(v, 2))
	}
	if v, ok := simNumber(at(simColDepthPercent)); ok {
		s.Summary.CorrectDepthPercent = Number(util.Round(v, 1))
	}
	if v, ok := simNumber(at(simColRate)); ok {
		s.Summary.CompressionRate = Number(util.Round(v, 1))
	}
	if v, ok := simNumber(at(simColRatePercent)); ok {
		s.Summary.CorrectRatePercent = Number(util.Round(v, 1))
	}
	s.Notes = at(simColNotes)
}

// rangedColumns assigns free-form numbers by plausible range, first match
// wins: duration 10-600 s, depth 3-8 cm, rate 80-160/min, then depth and
// rate compliance 0-100 %. A long non-numeric value in the last two
// columns is taken as notes.
func rangedColumns(s *SimulatedSession, parts []string) {
	m := &s.Summary
	for i := 2; i < len(parts); i++ {
		part := parts[i]
		switch strings.ToLower(part) {
		case "", "simulated", "real_call":
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			if i >= len(parts)-2 && len(part) > 5 {
				s.Notes = part
			}
			continue
		}
		if !finite(v) {
			continue
		}

		switch {
		case m.Duration.IsAbsent() && v >= 10 && v <= 600:
			m.Duration = Number(math.Trunc(v))
		case m.CompressionDepth.IsAbsent() && v >= 3 && v <= 8:
			m.CompressionDepth = Number(util.Round(v, 2))
		case m.CompressionRate.IsAbsent() && v >= 80 && v <= 160:
			m.CompressionRate = Number(util.Round(v, 1))
		case m.CorrectDepthPercent.IsAbsent() && v >= 0 && v <= 100:
			m.CorrectDepthPercent = Number(util.Round(v, 1))
		case m.CorrectRatePercent.IsAbsent() && v >= 0 && v <= 100:
			m.CorrectRatePercent = Number(util.Round(v, 1))
		}
	}
}
