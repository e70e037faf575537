package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type readingKind uint8

const (
	kindAbsent readingKind = iota
	kindNumber
	kindText
)

// Reading is one cell taken from a device export: absent, a number, or the
// original text when the cell was not numeric.
type Reading struct {
	kind readingKind
	num  float64
	text string
}

var Absent = Reading{}

func Number(v float64) Reading { return Reading{kind: kindNumber, num: v} }

func Text(s string) Reading { return Reading{kind: kindText, text: s} }

func (r Reading) IsAbsent() bool { return r.kind == kindAbsent }

// Float returns the numeric value; text and absent readings report false.
func (r Reading) Float() (float64, bool) {
	return r.num, r.kind == kindNumber
}

// FloatPtr is Float as a nullable pointer.
func (r Reading) FloatPtr() *float64 {
	if r.kind != kindNumber {
		return nil
	}
	v := r.num
	return &v
}

func (r Reading) Text() (string, bool) {
	return r.text, r.kind == kindText
}

// Value returns the reading as float64, string or nil.
func (r Reading) Value() any {
	switch r.kind {
	case kindNumber:
		return r.num
	case kindText:
		return r.text
	}
	return nil
}

func (r Reading) String() string {
	switch r.kind {
	case kindNumber:
		return strconv.FormatFloat(r.num, 'f', -1, 64)
	case kindText:
		return r.text
	}
	return ""
}

func (r Reading) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindNumber:
		return json.Marshal(r.num)
	case kindText:
		return json.Marshal(r.text)
	}
	return []byte("null"), nil
}

func (r *Reading) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Absent
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Number(f)
	return nil
}

// SummaryMetrics holds the whole-session values from the single row of
// Case Statistics.csv.
type SummaryMetrics struct {
	CorrectDepthPercent          Reading `json:"correct_depth_percent"`
	CorrectRatePercent           Reading `json:"correct_rate_percent"`
	CompressionRate              Reading `json:"compression_rate"`
	CompressionDepth             Reading `json:"compression_depth"`
	Duration                     Reading `json:"duration"`
	CompressionFraction          Reading `json:"compression_fraction"`
	SecondsToFirstCompression    Reading `json:"seconds_to_first_compression"`
	SecondsToFirstShock          Reading `json:"seconds_to_first_shock"`
	AvgPostShockPause            Reading `json:"avg_post_shock_pause"`
	TotalPauseDuration           Reading `json:"total_pause_duration"`
	ManualCPRDuration            Reading `json:"manual_cpr_duration"`
	ManualPauseDuration          Reading `json:"manual_pause_duration"`
	TotalCompressions            Reading `json:"total_compressions"`
	TotalCompressionsManual      Reading `json:"total_compressions_manual"`
	PercentNotInCPR              Reading `json:"percent_not_in_cpr"`
	CompressionsInTargetDepth    Reading `json:"compressions_in_target_depth"`
	CompressionsBelowTargetDepth Reading `json:"compressions_below_target_depth"`
	CompressionsAboveTargetDepth Reading `json:"compressions_above_target_depth"`
	DepthStdDev                  Reading `json:"depth_std_dev"`
	CompressionsInTargetRate     Reading `json:"compressions_in_target_rate"`
	CompressionsBelowTargetRate  Reading `json:"compressions_below_target_rate"`
	CompressionsAboveTargetRate  Reading `json:"compressions_above_target_rate"`
	RateStdDev                   Reading `json:"rate_std_dev"`
	CompressionsInTargetPercent  Reading `json:"compressions_in_target_percent"`
	MeanReleaseVelocity          Reading `json:"mean_release_velocity"`
	ReleaseVelocityStdDev        Reading `json:"release_velocity_std_dev"`
	MeanEtCO2                    Reading `json:"mean_etco2"`
	MaxEtCO2                     Reading `json:"max_etco2"`
	TargetDepthSetting           Reading `json:"target_depth_setting"`
	TargetRateSetting            Reading `json:"target_rate_setting"`
	TargetQualityPercent         Reading `json:"target_quality_percent"`
	TargetCCFPercent             Reading `json:"target_ccf_percent"`
	Tags                         Reading `json:"tags"`
}

// IntervalRecord is one row of MinuteByMinuteReport.csv. SecondsAnalyzed is
// kept as metadata only; minute slots are never weighted by it.
type IntervalRecord struct {
	Interval            int      `json:"interval"`
	RowIndex            int      `json:"row_index"`
	SecondsAnalyzed     *float64 `json:"seconds_analyzed"`
	SecondsWithout      *float64 `json:"seconds_without"`
	CompressionRate     *float64 `json:"compression_rate"`
	CompressionDepth    *float64 `json:"compression_depth"`
	CompressionFraction *float64 `json:"ccf"`
	EtCO2               *float64 `json:"etco2"`
	CorrectDepthPercent *float64 `json:"correct_depth_percent"`
	CorrectRatePercent  *float64 `json:"correct_rate_percent"`
}

// MinuteSlot is interval N copied into minute N. Present is false when the
// export had no row for that interval.
type MinuteSlot struct {
	Minute              int      `json:"minute"`
	Present             bool     `json:"present"`
	CompressionRate     *float64 `json:"cr_cmprt"`
	CompressionFraction *float64 `json:"cr_cprff"`
	CompressionDepth    *float64 `json:"cr_cdpth"`
	EtCO2               *float64 `json:"cr_etco2"`
	SecondsWithout      *float64 `json:"cr_secun"`
}

// PauseStats aggregates IndividualPauses.csv. All fields are nil when the
// file or its duration column is missing.
type PauseStats struct {
	Count         *int     `json:"pause_count"`
	Mean          *float64 `json:"mean_pause_duration"`
	Max           *float64 `json:"max_pause_duration"`
	OverThreshold *int     `json:"pauses_over_10s"`
}

type Segment struct {
	Number     int    `json:"number"`
	Start      string `json:"cr_ecstrttm,omitempty"`
	Stop       string `json:"cr_esctoptm,omitempty"`
	Reason     string `json:"cr_rsnstp,omitempty"`
	ReasonText string `json:"cr_rsnstp_text,omitempty"`
	Shock      string `json:"cr_rsnshk,omitempty"`
}

// NormalizedMetrics is everything extracted from one bundle. It is not
// modified after Parse returns.
type NormalizedMetrics struct {
	Summary      SummaryMetrics   `json:"summary"`
	Minutes      []MinuteSlot     `json:"minutes"`
	Intervals    []IntervalRecord `json:"intervals"`
	Pauses       PauseStats       `json:"pauses"`
	Segments     []Segment        `json:"segments,omitempty"`
	SegmentCount int              `json:"segment_count"`
}

// Payload maps report field ids to values, minute fields and segment fields
// alike. Absent values are never stored.
type Payload map[string]Reading

// Values flattens the payload for consumers that do not know Reading.
func (p Payload) Values() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if v.IsAbsent() {
			continue
		}
		out[k] = v.Value()
	}
	return out
}

type Result struct {
	Metrics NormalizedMetrics `json:"metrics"`
	Payload Payload           `json:"payload"`
}
