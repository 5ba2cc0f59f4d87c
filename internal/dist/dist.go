package dist

import (
	"fmt"
	"math"
	"math/rand"
)

// Family identifies a reward distribution family.
type Family string

const (
	Normal      Family = "normal"
	Uniform     Family = "uniform"
	ChiSquared  Family = "chisquared"
	Exponential Family = "exponential"
	Poisson     Family = "poisson"
	Bernoulli   Family = "bernoulli"
)

// Families lists every supported family in a stable order.
func Families() []Family {
	return []Family{Normal, Uniform, ChiSquared, Exponential, Poisson, Bernoulli}
}

func ParseFamily(name string) (Family, error) {
	switch Family(name) {
	case Normal, Uniform, ChiSquared, Exponential, Poisson, Bernoulli:
		return Family(name), nil
	default:
		return "", fmt.Errorf("unsupported distribution family: %s", name)
	}
}

func paramCount(family Family) int {
	switch family {
	case Normal, Uniform:
		return 2
	default:
		return 1
	}
}

// Validate checks parameter arity and per-family domain constraints.
func Validate(family Family, params []float64) error {
	if _, err := ParseFamily(string(family)); err != nil {
		return err
	}
	if want := paramCount(family); len(params) != want {
		return fmt.Errorf("%s requires %d parameters, got %d", family, want, len(params))
	}
	for i, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%s parameter %d is not finite", family, i)
		}
	}
	switch family {
	case Normal:
		if params[1] <= 0 {
			return fmt.Errorf("normal stddev must be > 0, got %f", params[1])
		}
	case Uniform:
		if params[0] >= params[1] {
			return fmt.Errorf("uniform requires min < max, got [%f, %f]", params[0], params[1])
		}
	case ChiSquared:
		df := params[0]
		if df < 1 || df != math.Trunc(df) {
			return fmt.Errorf("chisquared degrees of freedom must be a positive integer, got %f", df)
		}
	case Exponential:
		if params[0] <= 0 {
			return fmt.Errorf("exponential rate must be > 0, got %f", params[0])
		}
	case Poisson:
		if params[0] <= 0 {
			return fmt.Errorf("poisson lambda must be > 0, got %f", params[0])
		}
	case Bernoulli:
		if params[0] < 0 || params[0] > 1 {
			return fmt.Errorf("bernoulli p must be in [0, 1], got %f", params[0])
		}
	}
	return nil
}

// ExpectedValue returns the closed-form mean of the family.
func ExpectedValue(family Family, params []float64) (float64, error) {
	if err := Validate(family, params); err != nil {
		return 0, err
	}
	switch family {
	case Normal:
		return params[0], nil
	case Uniform:
		return (params[0] + params[1]) / 2, nil
	case ChiSquared:
		return params[0], nil
	case Exponential:
		return 1 / params[0], nil
	case Poisson:
		return params[0], nil
	case Bernoulli:
		return params[0], nil
	default:
		return 0, fmt.Errorf("unsupported distribution family: %s", family)
	}
}

// Sampler draws rewards from parameterized families using one rand source.
type Sampler struct {
	r *rand.Rand
}

func NewSampler(r *rand.Rand) *Sampler {
	return &Sampler{r: r}
}

// Sample draws one value from the family. Parameters are assumed to have
// been validated at configuration time.
func (s *Sampler) Sample(family Family, params []float64) (float64, error) {
	switch family {
	case Normal:
		return params[0] + params[1]*s.standardNormal(), nil
	case Uniform:
		return params[0] + s.r.Float64()*(params[1]-params[0]), nil
	case ChiSquared:
		df := int(params[0])
		sum := 0.0
		for i := 0; i < df; i++ {
			z := s.standardNormal()
			sum += z * z
		}
		return sum, nil
	case Exponential:
		return -math.Log(1-s.r.Float64()) / params[0], nil
	case Poisson:
		return float64(s.poisson(params[0])), nil
	case Bernoulli:
		if s.r.Float64() < params[0] {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported distribution family: %s", family)
	}
}

// standardNormal draws N(0,1) via the Box-Muller transform.
func (s *Sampler) standardNormal() float64 {
	u1 := s.r.Float64()
	for u1 == 0 {
		u1 = s.r.Float64()
	}
	u2 := s.r.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// poisson draws via the Knuth multiplicative algorithm.
func (s *Sampler) poisson(lambda float64) int {
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		k++
		p *= s.r.Float64()
		if p <= l {
			return k - 1
		}
	}
}
