package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cprqa/internal/shared/util"
)

var intervalPattern = regexp.MustCompile(`^Interval\s+(\d+)`)

const (
	colInterval        = "Interval"
	colSecondsAnalyzed = "Seconds Analyzed"
	colSecondsWithout  = "Seconds Without Compression"
	colRate            = "Mean Compression Rate"
	colDepth           = "Mean Compression Depth (cms)"
	colFraction        = "Compression Fraction"
	colEtCO2           = "Mean EtCO2"
	colDepthPercent    = "% Compressions in Target Depth"
	colRatePercent     = "% Compressions in Target Rate"
)

// minutePrefixes is the payload key order for one minute.
var minutePrefixes = []string{"cr_cmprt", "cr_cprff", "cr_cdpth", "cr_etco2", "cr_secun"}

// parseIntervals returns every row and the number of non-empty cells that
// could not be read as numbers.
func parseIntervals(t *table) ([]IntervalRecord, int) {
	records := make([]IntervalRecord, 0, len(t.rows))
	absent := 0
	number := func(row []string, column string) *float64 {
		raw, ok := t.cell(row, column)
		if !ok || raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || !finite(v) {
			absent++
			return nil
		}
		return &v
	}

	for i, row := range t.rows {
		rec := IntervalRecord{RowIndex: i, Interval: i + 1}
		if label, ok := t.cell(row, colInterval); ok {
			if m := intervalPattern.FindStringSubmatch(label); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					rec.Interval = n
				}
			}
		}
		rec.SecondsAnalyzed = number(row, colSecondsAnalyzed)
		rec.SecondsWithout = number(row, colSecondsWithout)
		rec.CompressionRate = number(row, colRate)
		rec.CompressionDepth = number(row, colDepth)
		rec.CompressionFraction = number(row, colFraction)
		rec.EtCO2 = number(row, colEtCO2)
		rec.CorrectDepthPercent = number(row, colDepthPercent)
		rec.CorrectRatePercent = number(row, colRatePercent)
		records = append(records, rec)
	}
	return records, absent
}

// buildSlots maps interval N to minute N for minutes 1..window. When an
// interval repeats, the later row wins.
func buildSlots(records []IntervalRecord, window int) []MinuteSlot {
	byInterval := make(map[int]IntervalRecord, window)
	for _, rec := range records {
		if rec.Interval >= 1 && rec.Interval <= window {
			byInterval[rec.Interval] = rec
		}
	}

	slots := make([]MinuteSlot, window)
	for minute := 1; minute <= window; minute++ {
		slot := MinuteSlot{Minute: minute}
		if rec, ok := byInterval[minute]; ok {
			slot.Present = true
			slot.CompressionRate = util.RoundPtr(rec.CompressionRate, 1)
			slot.CompressionFraction = util.RoundPtr(rec.CompressionFraction, 1)
			slot.CompressionDepth = util.RoundPtr(rec.CompressionDepth, 2)
			slot.EtCO2 = util.RoundPtr(rec.EtCO2, 1)
			slot.SecondsWithout = util.RoundPtr(rec.SecondsWithout, 1)
		}
		slots[minute-1] = slot
	}
	return slots
}

func (s MinuteSlot) values() []*float64 {
	return []*float64{s.CompressionRate, s.CompressionFraction, s.CompressionDepth, s.EtCO2, s.SecondsWithout}
}

func slotPayload(slots []MinuteSlot) Payload {
	payload := make(Payload)
	for _, slot := range slots {
		for i, v := range slot.values() {
			if v == nil {
				continue
			}
			payload[fmt.Sprintf("%s%d", minutePrefixes[i], slot.Minute)] = Number(*v)
		}
	}
	return payload
}
