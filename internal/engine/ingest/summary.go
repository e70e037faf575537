package ingest

import (
	"strconv"
	"strings"

	"cprqa/internal/shared/util"
)

type roundPolicy int

const (
	roundTenths roundPolicy = iota
	roundHundredths
	roundWhole
)

type summaryColumn struct {
	header string
	policy roundPolicy
	field  func(*SummaryMetrics) *Reading
}

// Depth-like values keep two decimals and compression counts are whole;
// everything else, percentages included, keeps one decimal.
var summaryColumns = []summaryColumn{
	{"% in Target Depth manual", roundTenths, func(m *SummaryMetrics) *Reading { return &m.CorrectDepthPercent }},
	{"% in Target Rate manual", roundTenths, func(m *SummaryMetrics) *Reading { return &m.CorrectRatePercent }},
	{"Mean Compression Rate", roundTenths, func(m *SummaryMetrics) *Reading { return &m.CompressionRate }},
	{"Mean Compression Depth (cms)", roundHundredths, func(m *SummaryMetrics) *Reading { return &m.CompressionDepth }},
	{"Total CPR Period Duration", roundTenths, func(m *SummaryMetrics) *Reading { return &m.Duration }},
	{"CCF All % in CPR time", roundTenths, func(m *SummaryMetrics) *Reading { return &m.CompressionFraction }},
	{"Seconds to First Compression", roundTenths, func(m *SummaryMetrics) *Reading { return &m.SecondsToFirstCompression }},
	{"Seconds to First Shock", roundTenths, func(m *SummaryMetrics) *Reading { return &m.SecondsToFirstShock }},
	{"Average length of post-shock pause (sec)", roundTenths, func(m *SummaryMetrics) *Reading { return &m.AvgPostShockPause }},
	{"Total Pause Period Duration", roundTenths, func(m *SummaryMetrics) *Reading { return &m.TotalPauseDuration }},
	{"Manual CPR Period Duration (sec)", roundTenths, func(m *SummaryMetrics) *Reading { return &m.ManualCPRDuration }},
	{"Manual Pause Period Duration (sec)", roundTenths, func(m *SummaryMetrics) *Reading { return &m.ManualPauseDuration }},
	{"Total Number of Compressions", roundWhole, func(m *SummaryMetrics) *Reading { return &m.TotalCompressions }},
	{"Total Number of Compressions manual", roundWhole, func(m *SummaryMetrics) *Reading { return &m.TotalCompressionsManual }},
	{"% of time Not in CPR", roundTenths, func(m *SummaryMetrics) *Reading { return &m.PercentNotInCPR }},
	{"Compressions in Target Depth manual", roundWhole, func(m *SummaryMetrics) *Reading { return &m.CompressionsInTargetDepth }},
	{"Compressions Below Target Depth manual", roundWhole, func(m *SummaryMetrics) *Reading { return &m.CompressionsBelowTargetDepth }},
	{"Compressions Above Target Depth manual", roundWhole, func(m *SummaryMetrics) *Reading { return &m.CompressionsAboveTargetDepth }},
	{"Standard Deviation Depth manual (cms)", roundHundredths, func(m *SummaryMetrics) *Reading { return &m.DepthStdDev }},
	{"Compressions in Target Rate manual", roundWhole, func(m *SummaryMetrics) *Reading { return &m.CompressionsInTargetRate }},
	{"Compressions Below Target Rate manual", roundWhole, func(m *SummaryMetrics) *Reading { return &m.CompressionsBelowTargetRate }},
	{"Compressions Above Target Rate manual", roundWhole, func(m *SummaryMetrics) *Reading { return &m.CompressionsAboveTargetRate }},
	{"Standard Deviation Rate manual", roundTenths, func(m *SummaryMetrics) *Reading { return &m.RateStdDev }},
	{"Compressions in target % manual", roundTenths, func(m *SummaryMetrics) *Reading { return &m.CompressionsInTargetPercent }},
	{"Mean Release Velocity manual", roundTenths, func(m *SummaryMetrics) *Reading { return &m.MeanReleaseVelocity }},
	{"Standard Deviation Release Velocity manual", roundTenths, func(m *SummaryMetrics) *Reading { return &m.ReleaseVelocityStdDev }},
	{"Mean EtCO2", roundTenths, func(m *SummaryMetrics) *Reading { return &m.MeanEtCO2 }},
	{"Maximum EtCO2", roundTenths, func(m *SummaryMetrics) *Reading { return &m.MaxEtCO2 }},
	{"Target Setting Compression Depth (cms)", roundTenths, func(m *SummaryMetrics) *Reading { return &m.TargetDepthSetting }},
	{"Target Setting Compression Rate", roundTenths, func(m *SummaryMetrics) *Reading { return &m.TargetRateSetting }},
	{"Target Setting Compression Quality Percentage", roundTenths, func(m *SummaryMetrics) *Reading { return &m.TargetQualityPercent }},
	{"Target Setting Cpr Fraction Percentage", roundTenths, func(m *SummaryMetrics) *Reading { return &m.TargetCCFPercent }},
	{"Tag(s)", roundTenths, func(m *SummaryMetrics) *Reading { return &m.Tags }},
}

// parseSummary reads the first data row only. Non-numeric cells such as a
// "5 to 6" target range are kept as trimmed text; NaN and infinities are
// left absent.
func parseSummary(t *table) SummaryMetrics {
	var m SummaryMetrics
	row := t.rows[0]
	for _, col := range summaryColumns {
		raw, ok := t.cell(row, col.header)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			*col.field(&m) = Text(raw)
			continue
		}
		if !finite(v) {
			continue
		}
		*col.field(&m) = Number(col.policy.apply(v))
	}
	return m
}

func (p roundPolicy) apply(v float64) float64 {
	switch p {
	case roundHundredths:
		return util.Round(v, 2)
	case roundWhole:
		return util.Round(v, 0)
	default:
		return util.Round(v, 1)
	}
}
