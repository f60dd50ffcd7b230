// Package rng implements the discrete-distribution sampler the search
// scheduler uses to pick a priority band (spec.md §4.2, §9 "Weighted
// random formula"). The production sampler is backed by gonum's
// stat/sampleuv.Weighted; tests inject a deterministic Sampler so
// findAutoSearch's band choice is reproducible (spec.md §5 "Randomness").
package rng

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/sampleuv"
)

// Sampler draws a single index from a non-negative integer weight vector.
// It reports ok=false when every weight is zero.
type Sampler interface {
	Sample(weights []int) (idx int, ok bool)
}

// GonumWeighted is the process-wide production sampler (spec.md §5:
// "a single process-wide pseudo-random generator seeded at startup").
type GonumWeighted struct {
	src rand.Source
}

// NewGonumWeighted seeds the generator from the given seed. Production
// callers seed from system entropy once at startup.
func NewGonumWeighted(seed int64) *GonumWeighted {
	return &GonumWeighted{src: rand.NewSource(uint64(seed))}
}

func (g *GonumWeighted) Sample(weights []int) (int, bool) {
	total := 0
	fw := make([]float64, len(weights))
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		fw[i] = float64(w)
		total += w
	}
	if total <= 0 {
		return 0, false
	}
	w := sampleuv.NewWeighted(fw, g.src)
	return w.Take()
}

// Deterministic replays a fixed sequence of indices, for scenario tests
// such as spec.md §8 S2 ("Seeded RNG with draw=0").
type Deterministic struct {
	Draws []int
	pos   int
}

func NewDeterministic(draws ...int) *Deterministic {
	return &Deterministic{Draws: draws}
}

func (d *Deterministic) Sample(weights []int) (int, bool) {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0, false
	}
	if d.pos >= len(d.Draws) {
		return 0, true
	}
	idx := d.Draws[d.pos]
	d.pos++
	if idx < 0 || idx >= len(weights) {
		return 0, true
	}
	return idx, true
}
