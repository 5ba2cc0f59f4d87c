package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"banditlab/internal/engine"
)

var (
	roundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "banditlab",
		Subsystem: "session",
		Name:      "rounds_total",
		Help:      "Total rounds played",
	})

	cumulativePayout = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "banditlab",
		Subsystem: "session",
		Name:      "cumulative_payout",
		Help:      "Cumulative payout per tracked series",
	}, []string{"series"})

	cumulativeRegret = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "banditlab",
		Subsystem: "session",
		Name:      "cumulative_regret",
		Help:      "Cumulative expected-value regret per tracked series",
	}, []string{"series"})

	pullDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "banditlab",
		Subsystem: "session",
		Name:      "pull_duration_seconds",
		Help:      "Wall time to resolve one full round",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
)

func observeRound(result engine.RoundResult, elapsed time.Duration) {
	roundsTotal.Inc()
	pullDuration.Observe(elapsed.Seconds())

	cumulativePayout.WithLabelValues(engine.SeriesUser).Set(result.User.CumPayout)
	cumulativeRegret.WithLabelValues(engine.SeriesUser).Set(result.User.CumRegret)
	cumulativePayout.WithLabelValues(engine.SeriesBest).Set(result.Best.CumPayout)
	cumulativeRegret.WithLabelValues(engine.SeriesBest).Set(result.Best.CumRegret)
	for typeID, entity := range result.Strategies {
		cumulativePayout.WithLabelValues(typeID).Set(entity.CumPayout)
		cumulativeRegret.WithLabelValues(typeID).Set(entity.CumRegret)
	}
}
