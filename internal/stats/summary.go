package stats

import (
	"math"

	"banditlab/internal/engine"
)

// SeriesSummary condenses one cumulative track into the numbers worth
// printing after a run.
type SeriesSummary struct {
	SeriesID       string  `json:"series_id"`
	Rounds         int     `json:"rounds"`
	FinalPayout    float64 `json:"final_payout"`
	FinalRegret    float64 `json:"final_regret"`
	MeanPerRound   float64 `json:"mean_per_round"`
	StdPerRound    float64 `json:"std_per_round"`
	RegretPerRound float64 `json:"regret_per_round"`
}

func Summarize(seriesID string, track engine.Track) SeriesSummary {
	summary := SeriesSummary{SeriesID: seriesID, Rounds: len(track.Payout)}
	if summary.Rounds == 0 {
		return summary
	}

	summary.FinalPayout = track.Payout[summary.Rounds-1]
	summary.FinalRegret = track.Regret[summary.Rounds-1]
	summary.RegretPerRound = summary.FinalRegret / float64(summary.Rounds)

	// Per-round payouts are first differences of the cumulative track.
	perRound := make([]float64, summary.Rounds)
	prev := 0.0
	for i, cum := range track.Payout {
		perRound[i] = cum - prev
		prev = cum
	}
	summary.MeanPerRound = mean(perRound)
	summary.StdPerRound = std(perRound, summary.MeanPerRound)
	return summary
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func std(values []float64, mu float64) float64 {
	if len(values) == 0 {
		return 0
	}
	acc := 0.0
	for _, v := range values {
		d := v - mu
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}
