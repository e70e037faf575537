// Package scoring computes the JcLS CPR quality score: eight banded
// sub-scores grouped into four tiers and scaled to 0-100 over the points
// that had data.
package scoring

import (
	"math"

	"cprqa/internal/engine/ingest"
)

type Band string

const (
	BandGreen  Band = "green"
	BandYellow Band = "yellow"
	BandRed    Band = "red"
)

func BandFor(score int) Band {
	switch {
	case score >= 80:
		return BandGreen
	case score >= 60:
		return BandYellow
	}
	return BandRed
}

// Inputs are the eight source metrics. Nil means the metric was not recorded.
type Inputs struct {
	CorrectDepthPercent         *float64
	CorrectRatePercent          *float64
	CompressionsInTargetPercent *float64
	CompressionFraction         *float64
	MeanPauseDuration           *float64
	PausesOverThreshold         *int
	MeanReleaseVelocity         *float64
	ReleaseVelocityStdDev       *float64
	SecondsToFirstCompression   *float64
	SecondsToFirstShock         *float64
}

// InputsFrom picks the scored fields out of parsed metrics. Text readings
// count as missing.
func InputsFrom(m *ingest.NormalizedMetrics) Inputs {
	if m == nil {
		return Inputs{}
	}
	s := m.Summary
	return Inputs{
		CorrectDepthPercent:         s.CorrectDepthPercent.FloatPtr(),
		CorrectRatePercent:          s.CorrectRatePercent.FloatPtr(),
		CompressionsInTargetPercent: s.CompressionsInTargetPercent.FloatPtr(),
		CompressionFraction:         s.CompressionFraction.FloatPtr(),
		MeanPauseDuration:           m.Pauses.Mean,
		PausesOverThreshold:         m.Pauses.OverThreshold,
		MeanReleaseVelocity:         s.MeanReleaseVelocity.FloatPtr(),
		ReleaseVelocityStdDev:       s.ReleaseVelocityStdDev.FloatPtr(),
		SecondsToFirstCompression:   s.SecondsToFirstCompression.FloatPtr(),
		SecondsToFirstShock:         s.SecondsToFirstShock.FloatPtr(),
	}
}

type SubScore struct {
	Value  *float64 `json:"value"`
	Earned int      `json:"earned"`
	Max    int      `json:"max"`
}

type PauseQuality struct {
	Earned       int      `json:"earned"`
	Max          int      `json:"max"`
	MeanPause    SubScore `json:"mean_pause"`
	NoLongPauses SubScore `json:"no_long_pauses"`
}

type ReleaseVelocity struct {
	Value  *float64 `json:"value"`
	SD     *float64 `json:"sd"`
	Earned int      `json:"earned"`
	Max    int      `json:"max"`
}

type FirstShock struct {
	Value           *float64 `json:"value"`
	ShocksDelivered *int     `json:"shocks_delivered"`
	Earned          int      `json:"earned"`
	Max             int      `json:"max"`
}

type CompressionTier struct {
	Name               string   `json:"name"`
	Earned             int      `json:"earned"`
	Max                int      `json:"max"`
	DepthCompliance    SubScore `json:"depth_compliance"`
	RateCompliance     SubScore `json:"rate_compliance"`
	CombinedCompliance SubScore `json:"combined_compliance"`
}

type PerfusionTier struct {
	Name         string       `json:"name"`
	Earned       int          `json:"earned"`
	Max          int          `json:"max"`
	CCF          SubScore     `json:"ccf"`
	PauseQuality PauseQuality `json:"pause_quality"`
}

type RecoilTier struct {
	Name            string          `json:"name"`
	Earned          int             `json:"earned"`
	Max             int             `json:"max"`
	ReleaseVelocity ReleaseVelocity `json:"release_velocity"`
}

type SystemTier struct {
	Name                   string     `json:"name"`
	Earned                 int        `json:"earned"`
	Max                    int        `json:"max"`
	TimeToFirstCompression SubScore   `json:"time_to_first_compression"`
	TimeToFirstShock       FirstShock `json:"time_to_first_shock"`
}

// Result is the score plus the full breakdown kept for audit.
type Result struct {
	Score           int             `json:"jcls_score"`
	ColorBand       Band            `json:"color_band"`
	RawScore        int             `json:"raw_score"`
	AvailablePoints int             `json:"available_points"`
	Tier1           CompressionTier `json:"tier1"`
	Tier2           PerfusionTier   `json:"tier2"`
	Tier3           RecoilTier      `json:"tier3"`
	Tier4           SystemTier      `json:"tier4"`
}

// Score is ScoreInputs over parsed metrics.
func Score(m *ingest.NormalizedMetrics, shocksDelivered *int) Result {
	return ScoreInputs(InputsFrom(m), shocksDelivered)
}

// ScoreInputs is pure: the same inputs always give the same result. Missing
// metrics are left out of the denominator instead of scoring zero.
func ScoreInputs(in Inputs, shocksDelivered *int) Result {
	sub := func(t table, v *float64) SubScore {
		earned, max := t.score(v)
		return SubScore{Value: v, Earned: earned, Max: max}
	}

	t1 := CompressionTier{
		Name:               "Compression Quality",
		DepthCompliance:    sub(depthTable, in.CorrectDepthPercent),
		RateCompliance:     sub(rateTable, in.CorrectRatePercent),
		CombinedCompliance: sub(combinedTable, in.CompressionsInTargetPercent),
	}
	t1.Earned = t1.DepthCompliance.Earned + t1.RateCompliance.Earned + t1.CombinedCompliance.Earned
	t1.Max = t1.DepthCompliance.Max + t1.RateCompliance.Max + t1.CombinedCompliance.Max

	var longPauses *float64
	if in.PausesOverThreshold != nil {
		v := float64(*in.PausesOverThreshold)
		longPauses = &v
	}
	pq := PauseQuality{
		MeanPause:    sub(pauseMeanTable, in.MeanPauseDuration),
		NoLongPauses: sub(longPauseTable, longPauses),
	}
	pq.Earned = pq.MeanPause.Earned + pq.NoLongPauses.Earned
	pq.Max = pq.MeanPause.Max + pq.NoLongPauses.Max
	t2 := PerfusionTier{
		Name:         "Perfusion Continuity",
		CCF:          sub(ccfTable, in.CompressionFraction),
		PauseQuality: pq,
	}
	t2.Earned = t2.CCF.Earned + pq.Earned
	t2.Max = t2.CCF.Max + pq.Max

	rvEarned, rvMax := scoreReleaseVelocity(in.MeanReleaseVelocity, in.ReleaseVelocityStdDev)
	t3 := RecoilTier{
		Name:   "Recoil Quality",
		Earned: rvEarned,
		Max:    rvMax,
		ReleaseVelocity: ReleaseVelocity{
			Value:  in.MeanReleaseVelocity,
			SD:     in.ReleaseVelocityStdDev,
			Earned: rvEarned,
			Max:    rvMax,
		},
	}

	fsEarned, fsMax := scoreFirstShock(in.SecondsToFirstShock, shocksDelivered)
	t4 := SystemTier{
		Name:                   "System Performance",
		TimeToFirstCompression: sub(firstCompressionTable, in.SecondsToFirstCompression),
		TimeToFirstShock: FirstShock{
			Value:           in.SecondsToFirstShock,
			ShocksDelivered: shocksDelivered,
			Earned:          fsEarned,
			Max:             fsMax,
		},
	}
	t4.Earned = t4.TimeToFirstCompression.Earned + fsEarned
	t4.Max = t4.TimeToFirstCompression.Max + fsMax

	res := Result{
		RawScore:        t1.Earned + t2.Earned + t3.Earned + t4.Earned,
		AvailablePoints: t1.Max + t2.Max + t3.Max + t4.Max,
		Tier1:           t1,
		Tier2:           t2,
		Tier3:           t3,
		Tier4:           t4,
	}
	if res.AvailablePoints > 0 {
		res.Score = int(math.RoundToEven(float64(res.RawScore) / float64(res.AvailablePoints) * 100))
	}
	res.ColorBand = BandFor(res.Score)
	return res
}
