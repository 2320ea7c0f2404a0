// Package sampler draws a representative coordinate from inside a rectangle.
package sampler

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/UnknownOlympus/gaia/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Mode selects the distribution used to pick a coordinate.
type Mode string

const (
	// ModeCentroid returns the rectangle center.
	ModeCentroid Mode = "centroid"
	// ModeUniform draws uniformly inside the rectangle.
	ModeUniform Mode = "uniform"
	// ModeGaussian draws from normal distributions centered on the rectangle.
	ModeGaussian Mode = "gaussian"
)

const (
	// DefaultMaxAttempts bounds the rejection loop.
	DefaultMaxAttempts = 1000
	// DefaultSigma is the longitude standard deviation of the gaussian mode.
	DefaultSigma = 1.0
	// latitudeSigma is the fixed latitude standard deviation of the gaussian mode.
	latitudeSigma = 1.0
)

var (
	// ErrSamplingExhausted is returned when no draw landed inside the rectangle.
	ErrSamplingExhausted = errors.New("sampling attempts exhausted")
	// ErrUnknownMode is returned by ParseMode for unsupported names.
	ErrUnknownMode = errors.New("unknown sampler mode")
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(s))); mode {
	case ModeCentroid, ModeUniform, ModeGaussian:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Sampler picks coordinates inside rectangles. It is safe for concurrent use.
type Sampler struct {
	mode        Mode
	sigma       float64
	maxAttempts int
	uniform     func() float64
	normal      func() float64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithSigma sets the longitude standard deviation of the gaussian mode.
func WithSigma(sigma float64) Option {
	return func(s *Sampler) {
		if sigma > 0 {
			s.sigma = sigma
		}
	}
}

// WithMaxAttempts bounds the rejection loop of the random modes.
func WithMaxAttempts(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithSeed makes draws reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Sampler) {
		var mu sync.Mutex
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		s.uniform = func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return rng.Float64()
		}
		s.normal = func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return rng.NormFloat64()
		}
	}
}

// New creates a Sampler for the given mode.
func New(mode Mode, opts ...Option) *Sampler {
	s := &Sampler{
		mode:        mode,
		sigma:       DefaultSigma,
		maxAttempts: DefaultMaxAttempts,
		uniform:     rand.Float64,
		normal:      rand.NormFloat64,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Mode returns the configured mode.
func (s *Sampler) Mode() Mode {
	return s.mode
}

// Sample returns one coordinate inside b according to the sampler mode.
// b is expected to be standardized already.
func (s *Sampler) Sample(b orb.Bound) (models.Coordinate, error) {
	switch s.mode {
	case ModeCentroid:
		return toCoordinate(b.Center()), nil
	case ModeUniform:
		return s.reject(b, func() orb.Point {
			return orb.Point{
				b.Min[0] + s.uniform()*(b.Max[0]-b.Min[0]),
				b.Min[1] + s.uniform()*(b.Max[1]-b.Min[1]),
			}
		})
	case ModeGaussian:
		center := b.Center()
		return s.reject(b, func() orb.Point {
			return orb.Point{
				center[0] + s.normal()*s.sigma,
				center[1] + s.normal()*latitudeSigma,
			}
		})
	default:
		return models.Coordinate{}, fmt.Errorf("%w: %q", ErrUnknownMode, s.mode)
	}
}

func (s *Sampler) reject(b orb.Bound, draw func() orb.Point) (models.Coordinate, error) {
	poly := b.ToPolygon()
	for range s.maxAttempts {
		if pt := draw(); planar.PolygonContains(poly, pt) {
			return toCoordinate(pt), nil
		}
	}

	return models.Coordinate{}, fmt.Errorf("%w: %s mode after %d attempts", ErrSamplingExhausted, s.mode, s.maxAttempts)
}

func toCoordinate(p orb.Point) models.Coordinate {
	return models.Coordinate{Longitude: p.Lon(), Latitude: p.Lat()}
}
