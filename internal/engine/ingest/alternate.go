package ingest

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"cprqa/internal/shared/util"
)

// alternateMinuteCodes maps the alternate file's column codes to payload
// prefixes. Two codes are spelled differently in the report template.
var alternateMinuteCodes = map[string]string{
	"cr_dpth":  "cr_cdpth",
	"cr_cmprt": "cr_cmprt",
	"cr_etco2": "cr_etco2",
	"cr_secun": "cr_secun",
	"cr_crpff": "cr_cprff",
}

// parseAlternateMinutes reads the pre-coded minute file: codes on row 0,
// descriptions on row 1, one interval per row after that.
func parseAlternateMinutes(content string, window int) Payload {
	out := make(Payload)
	records, err := readRecords(strings.TrimSpace(content))
	if err != nil {
		slog.Warn("alternate minute file unreadable", "error", err)
		return out
	}
	if len(records) < 3 {
		return out
	}

	codes := make([]string, len(records[0]))
	for i, h := range records[0] {
		codes[i] = strings.TrimSpace(h)
	}

	for _, row := range records[2:] {
		if len(row) == 0 {
			continue
		}
		m := intervalPattern.FindStringSubmatch(row[0])
		if m == nil {
			continue
		}
		interval, err := strconv.Atoi(m[1])
		if err != nil || interval < 1 || interval > window {
			continue
		}
		for col := 1; col < len(codes) && col < len(row); col++ {
			prefix, ok := alternateMinuteCodes[codes[col]]
			if !ok {
				continue
			}
			raw := strings.TrimSpace(row[col])
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || !finite(v) {
				continue
			}
			out[fmt.Sprintf("%s%d", prefix, interval)] = Number(util.Round(v, 2))
		}
	}
	return out
}

var segmentBases = []string{"cr_ecstrttm", "cr_esctoptm", "cr_rsnstp", "cr_rsnshk"}

// parseAlternateSegments reads segment times and reasons. fields holds every
// non-empty value by payload code; segments lists only those with a start.
func parseAlternateSegments(content string, maxSegments int) (map[string]string, []Segment) {
	fields := make(map[string]string)
	records, err := readRecords(strings.TrimSpace(content))
	if err != nil {
		slog.Warn("alternate segment file unreadable", "error", err)
		return fields, nil
	}
	if len(records) < 3 {
		return fields, nil
	}

	columns := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		code := strings.TrimSpace(h)
		if _, seen := columns[code]; !seen {
			columns[code] = i
		}
	}
	data := records[2]
	var reasons []string
	if len(records) > 3 {
		reasons = records[3]
	}

	cell := func(row []string, code string) (string, bool) {
		idx, ok := columns[code]
		if !ok || idx >= len(row) {
			return "", false
		}
		v := strings.TrimSpace(row[idx])
		return v, v != ""
	}

	var segments []Segment
	for n := 1; n <= maxSegments; n++ {
		seg := Segment{Number: n}
		if v, ok := cell(data, fmt.Sprintf("cr_ecstrttm%d", n)); ok {
			seg.Start = v
		}
		if v, ok := cell(data, fmt.Sprintf("cr_esctoptm%d", n)); ok {
			seg.Stop = v
		}
		if v, ok := cell(data, fmt.Sprintf("cr_rsnstp%d", n)); ok {
			seg.Reason = v
		}
		if v, ok := cell(reasons, fmt.Sprintf("cr_rsnstp%d", n)); ok {
			seg.ReasonText = v
		}
		// The device spells the shock column rsnkshk; the template uses rsnshk.
		if v, ok := cell(data, fmt.Sprintf("cr_rsnkshk%d", n)); ok {
			seg.Shock = v
		}

		for code, v := range map[string]string{
			fmt.Sprintf("cr_ecstrttm%d", n):    seg.Start,
			fmt.Sprintf("cr_esctoptm%d", n):    seg.Stop,
			fmt.Sprintf("cr_rsnstp%d", n):      seg.Reason,
			fmt.Sprintf("cr_rsnstp%d_text", n): seg.ReasonText,
			fmt.Sprintf("cr_rsnshk%d", n):      seg.Shock,
		} {
			if v != "" {
				fields[code] = v
			}
		}
		if seg.Start != "" {
			segments = append(segments, seg)
		}
	}
	return fields, segments
}

func segmentPayload(fields map[string]string, limit int) Payload {
	out := make(Payload)
	for n := 1; n <= limit; n++ {
		for _, base := range segmentBases {
			code := fmt.Sprintf("%s%d", base, n)
			if v, ok := fields[code]; ok {
				out[code] = Text(v)
			}
		}
	}
	return out
}
