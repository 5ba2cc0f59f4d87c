package strategy

import "fmt"

// Stable type identifiers. These are wire-visible (series names, HTTP
// payloads, CLI flags) and must not change.
const (
	TypeUCB1              = "ucb1"
	TypeNonStationaryUCB  = "nonstationary-ucb"
	TypeEXP3              = "exp3"
	TypeEXP3R             = "exp3-r"
	TypeExploreThenCommit = "explore-commit"
	TypeOptimalDP         = "optimal-dp"
)

// Types lists every known strategy type in display order.
func Types() []string {
	return []string{
		TypeUCB1,
		TypeNonStationaryUCB,
		TypeEXP3,
		TypeEXP3R,
		TypeExploreThenCommit,
		TypeOptimalDP,
	}
}

// New constructs a strategy by type id. Construction is synchronous: a
// returned strategy is ready to Init and play immediately.
func New(typeID string, opts Options) (Strategy, error) {
	switch typeID {
	case TypeUCB1:
		return NewUCB1(), nil
	case TypeNonStationaryUCB:
		return NewNonStationaryUCB(opts), nil
	case TypeEXP3:
		return NewEXP3(opts), nil
	case TypeEXP3R:
		return NewEXP3R(opts), nil
	case TypeExploreThenCommit:
		return NewExploreThenCommit(opts), nil
	case TypeOptimalDP:
		return NewOptimalDP(opts), nil
	default:
		return nil, fmt.Errorf("unsupported strategy type: %s", typeID)
	}
}

// Descriptor maps a strategy type to its chart identity.
type Descriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
}

var descriptors = []Descriptor{
	{ID: TypeUCB1, DisplayName: "UCB1", Color: "#1f77b4"},
	{ID: TypeNonStationaryUCB, DisplayName: "Non-Stationary UCB", Color: "#ff7f0e"},
	{ID: TypeEXP3, DisplayName: "EXP3", Color: "#2ca02c"},
	{ID: TypeEXP3R, DisplayName: "EXP3-R", Color: "#d62728"},
	{ID: TypeExploreThenCommit, DisplayName: "Explore-Then-Commit", Color: "#9467bd"},
	{ID: TypeOptimalDP, DisplayName: "Optimal (DP)", Color: "#8c564b"},
}

// Descriptors returns the stable id / display name / color mapping for the
// chart layer.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}
