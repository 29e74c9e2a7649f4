// Package occupancy holds the per-voxel occupancy aggregate of the NDT map
// and the inverse sensor model it is evaluated against.
package occupancy

import (
	"errors"
	"fmt"
	"math"
)

// ErrInverseModelNotSet is returned when an occupancy value is requested
// without an inverse sensor model.
var ErrInverseModelNotSet = errors.New("occupancy: inverse model not set")

// InverseModel holds the prior, free and occupied probabilities of an
// inverse sensor model. It is a comparable value so cached occupancy values
// can be keyed on it directly.
type InverseModel struct {
	Prior    float64 `json:"prior"`
	Free     float64 `json:"free"`
	Occupied float64 `json:"occupied"`
}

// NewInverseModel validates that each probability lies strictly in (0, 1).
func NewInverseModel(prior, free, occupied float64) (*InverseModel, error) {
	m := &InverseModel{Prior: prior, Free: free, Occupied: occupied}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the model probabilities.
func (m InverseModel) Validate() error {
	checks := []struct {
		name string
		p    float64
	}{
		{"prior", m.Prior},
		{"free", m.Free},
		{"occupied", m.Occupied},
	}
	for _, c := range checks {
		if !(c.p > 0 && c.p < 1) {
			return fmt.Errorf("inverse model %s probability must be in (0, 1), got %f", c.name, c.p)
		}
	}
	return nil
}

// LogOddsPrior returns the log-odds of the prior probability.
func (m InverseModel) LogOddsPrior() float64 { return ProbabilityToLogOdds(m.Prior) }

// LogOddsFree returns the log-odds of the free-space probability.
func (m InverseModel) LogOddsFree() float64 { return ProbabilityToLogOdds(m.Free) }

// LogOddsOccupied returns the log-odds of the occupied probability.
func (m InverseModel) LogOddsOccupied() float64 { return ProbabilityToLogOdds(m.Occupied) }

// ProbabilityToLogOdds converts p into log(p / (1 - p)).
func ProbabilityToLogOdds(p float64) float64 {
	return math.Log(p / (1 - p))
}

// LogOddsToProbability converts log-odds l back into a probability.
func LogOddsToProbability(l float64) float64 {
	return 1 - 1/(1+math.Exp(l))
}
