package engine

// Track is one tracked entity's cumulative payout and regret, one point
// per round since the entity joined the session.
type Track struct {
	StartRound int       `json:"start_round"`
	Payout     []float64 `json:"payout"`
	Regret     []float64 `json:"regret"`
}

func (t *Track) cumulativePayout() float64 {
	if len(t.Payout) == 0 {
		return 0
	}
	return t.Payout[len(t.Payout)-1]
}

func (t *Track) cumulativeRegret() float64 {
	if len(t.Regret) == 0 {
		return 0
	}
	return t.Regret[len(t.Regret)-1]
}

// Accountant accumulates payout and regret series for every tracked
// entity: the user, the best-possible baseline, and each active strategy.
type Accountant struct {
	tracks map[string]*Track
	order  []string
}

func NewAccountant() *Accountant {
	return &Accountant{tracks: make(map[string]*Track)}
}

// Record appends one round's payout and regret increments for a series.
// Regret increments are clamped non-negative so every series is monotonic
// non-decreasing by construction.
func (a *Accountant) Record(seriesID string, round int, payout, regret float64) {
	t, ok := a.tracks[seriesID]
	if !ok {
		t = &Track{StartRound: round}
		a.tracks[seriesID] = t
		a.order = append(a.order, seriesID)
	}
	if regret < 0 {
		regret = 0
	}
	t.Payout = append(t.Payout, t.cumulativePayout()+payout)
	t.Regret = append(t.Regret, t.cumulativeRegret()+regret)
}

// Cumulative returns the latest cumulative payout and regret for a series.
func (a *Accountant) Cumulative(seriesID string) (payout, regret float64, ok bool) {
	t, found := a.tracks[seriesID]
	if !found {
		return 0, 0, false
	}
	return t.cumulativePayout(), t.cumulativeRegret(), true
}

// Series returns a deep copy of every track, keyed by series id.
func (a *Accountant) Series() map[string]Track {
	out := make(map[string]Track, len(a.tracks))
	for id, t := range a.tracks {
		out[id] = Track{
			StartRound: t.StartRound,
			Payout:     append([]float64(nil), t.Payout...),
			Regret:     append([]float64(nil), t.Regret...),
		}
	}
	return out
}

// SeriesIDs returns tracked series ids in first-seen order.
func (a *Accountant) SeriesIDs() []string {
	return append([]string(nil), a.order...)
}

func (a *Accountant) Reset() {
	a.tracks = make(map[string]*Track)
	a.order = nil
}
