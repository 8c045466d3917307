// Package capacity draws per-timeslot energy capacities for customer
// populations and adjusts them for time-of-day patterns, weather, price
// elasticity, and curtailment carry-over.
package capacity

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DistConfig selects and parameterizes a probability distribution. Only
// the fields relevant to the chosen type are read.
type DistConfig struct {
	Type string `koanf:"type"`

	Value     float64 `koanf:"value"`      // degenerate / pointmass
	Low       float64 `koanf:"low"`        // uniform, interval
	High      float64 `koanf:"high"`       // uniform, interval
	Mean      float64 `koanf:"mean"`       // normal, interval, exponential
	StdDev    float64 `koanf:"std_dev"`    // normal, interval
	ExpMean   float64 `koanf:"exp_mean"`   // lognormal
	ExpStdDev float64 `koanf:"exp_stddev"` // lognormal
	Alpha     float64 `koanf:"alpha"`      // beta, gamma, weibull
	Beta      float64 `koanf:"beta"`       // beta, gamma, weibull
	Trials    int     `koanf:"trials"`     // binomial
	Success   float64 `koanf:"success"`    // binomial
	Lambda    float64 `koanf:"lambda"`     // poisson
	Dof       float64 `koanf:"dof"`        // student, chi-squared
	Median    float64 `koanf:"median"`     // cauchy
	Scale     float64 `koanf:"scale"`      // cauchy
}

type sampler interface {
	sample() float64
}

// Distribution is a seeded sampler built from a DistConfig. Each
// Distribution owns an independent random source, so draws from one never
// perturb another.
type Distribution struct {
	cfg DistConfig
	s   sampler
}

type fixedSampler struct{ v float64 }

func (f fixedSampler) sample() float64 { return f.v }

// steppedUniform draws low + k for integer k in [0, high-low).
type steppedUniform struct {
	low   float64
	rng   *rand.Rand
	steps int
}

func (u steppedUniform) sample() float64 {
	return u.low + float64(u.rng.Intn(u.steps))
}

type clampedNormal struct {
	n         distuv.Normal
	low, high float64
}

func (c clampedNormal) sample() float64 {
	return math.Min(c.high, math.Max(c.low, c.n.Rand()))
}

type randFunc func() float64

func (f randFunc) sample() float64 { return f() }

// NewDistribution builds a seeded Distribution. Unknown types are an error.
func NewDistribution(cfg DistConfig, seed uint64) (*Distribution, error) {
	src := rand.NewSource(seed)
	var s sampler
	switch strings.ToUpper(cfg.Type) {
	case "DEGENERATE", "POINTMASS":
		s = fixedSampler{cfg.Value}
	case "UNIFORM":
		steps := int(math.Round(cfg.High - cfg.Low))
		if steps < 1 {
			return nil, fmt.Errorf("capacity: uniform range %v..%v too narrow", cfg.Low, cfg.High)
		}
		s = steppedUniform{low: cfg.Low, rng: rand.New(src), steps: steps}
	case "INTERVAL":
		s = clampedNormal{
			n:   distuv.Normal{Mu: cfg.Mean, Sigma: cfg.StdDev, Src: src},
			low: cfg.Low, high: cfg.High,
		}
	case "NORMAL", "GAUSSIAN":
		s = randFunc(distuv.Normal{Mu: cfg.Mean, Sigma: cfg.StdDev, Src: src}.Rand)
	case "STDNORMAL":
		s = randFunc(distuv.Normal{Mu: 0, Sigma: 1, Src: src}.Rand)
	case "LOGNORMAL":
		s = randFunc(distuv.LogNormal{
			Mu: math.Log(cfg.ExpMean), Sigma: math.Log(cfg.ExpStdDev), Src: src,
		}.Rand)
	case "CAUCHY":
		s = randFunc(distuv.StudentsT{Mu: cfg.Median, Sigma: cfg.Scale, Nu: 1, Src: src}.Rand)
	case "BETA":
		s = randFunc(distuv.Beta{Alpha: cfg.Alpha, Beta: cfg.Beta, Src: src}.Rand)
	case "BINOMIAL":
		s = randFunc(distuv.Binomial{N: float64(cfg.Trials), P: cfg.Success, Src: src}.Rand)
	case "POISSON":
		s = randFunc(distuv.Poisson{Lambda: cfg.Lambda, Src: src}.Rand)
	case "CHISQUARED":
		s = randFunc(distuv.ChiSquared{K: cfg.Dof, Src: src}.Rand)
	case "EXPONENTIAL":
		if cfg.Mean <= 0 {
			return nil, fmt.Errorf("capacity: exponential mean must be positive, got %v", cfg.Mean)
		}
		s = randFunc(distuv.Exponential{Rate: 1.0 / cfg.Mean, Src: src}.Rand)
	case "GAMMA":
		s = randFunc(distuv.Gamma{Alpha: cfg.Alpha, Beta: cfg.Beta, Src: src}.Rand)
	case "WEIBULL":
		s = randFunc(distuv.Weibull{K: cfg.Alpha, Lambda: cfg.Beta, Src: src}.Rand)
	case "STUDENT":
		s = randFunc(distuv.StudentsT{Mu: 0, Sigma: 1, Nu: cfg.Dof, Src: src}.Rand)
	default:
		return nil, fmt.Errorf("capacity: unknown distribution type %q", cfg.Type)
	}
	return &Distribution{cfg: cfg, s: s}, nil
}

// Sample draws one value.
func (d *Distribution) Sample() float64 { return d.s.sample() }

func (d *Distribution) String() string {
	return fmt.Sprintf("Distribution(%s)", d.cfg.Type)
}
