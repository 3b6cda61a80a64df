// Package gex turns option chain snapshots into gamma-exposure levels and a
// trade direction: the net GEX profile per strike, the zero-GEX flip level,
// and the call/put walls the bot trades against.
package gex

import (
	"sort"
	"time"

	"github.com/kwhitaker/zerogex/internal/models"
)

// Direction is the dealer-positioning read derived from spot versus the
// zero-GEX level.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// Profile is net gamma exposure aggregated per strike, with strikes kept in
// ascending order for sign-change scans.
type Profile struct {
	Strikes []float64
	Net     map[float64]float64
}

// BuildProfile sums per-contract GEX into a per-strike net profile.
func BuildProfile(snap *models.Snapshot) *Profile {
	p := &Profile{Net: make(map[float64]float64)}
	for i := range snap.Quotes {
		q := &snap.Quotes[i]
		if _, seen := p.Net[q.Strike]; !seen {
			p.Strikes = append(p.Strikes, q.Strike)
		}
		p.Net[q.Strike] += q.GEX()
	}
	sort.Float64s(p.Strikes)
	return p
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// ZeroGEXLevel scans strikes in ascending order and returns the first strike
// whose net GEX sign differs from its predecessor. ok is false when the
// profile never flips or has fewer than two strikes.
func (p *Profile) ZeroGEXLevel() (level float64, ok bool) {
	for i := 1; i < len(p.Strikes); i++ {
		prev := sign(p.Net[p.Strikes[i-1]])
		cur := sign(p.Net[p.Strikes[i]])
		if cur != prev {
			return p.Strikes[i], true
		}
	}
	return 0, false
}

// CallWall returns the strike above spot carrying the largest positive net
// GEX. Ties resolve toward spot (the lowest qualifying strike).
func (p *Profile) CallWall(spot float64) (strike float64, ok bool) {
	var best float64
	for _, s := range p.Strikes {
		g := p.Net[s]
		if s <= spot || g <= 0 {
			continue
		}
		if !ok || g > best {
			best, strike, ok = g, s, true
		}
	}
	return strike, ok
}

// PutWall returns the strike below spot carrying the most negative net GEX.
// Ties resolve toward spot (the highest qualifying strike).
func (p *Profile) PutWall(spot float64) (strike float64, ok bool) {
	var best float64
	for _, s := range p.Strikes {
		g := p.Net[s]
		if s >= spot || g >= 0 {
			continue
		}
		if !ok || g <= best {
			best, strike, ok = g, s, true
		}
	}
	return strike, ok
}

// Signal is the full per-snapshot read the lifecycle engine consumes.
// Level fields are nil when the profile does not produce them.
type Signal struct {
	Timestamp time.Time
	Spot      float64
	ZeroGEX   *float64
	CallWall  *float64
	PutWall   *float64
	Direction Direction
}

// Compute derives the signal for one snapshot.
func Compute(snap *models.Snapshot) *Signal {
	p := BuildProfile(snap)
	sig := &Signal{
		Timestamp: snap.Timestamp,
		Spot:      snap.UnderlyingPrice,
		Direction: DirectionNeutral,
	}
	if z, ok := p.ZeroGEXLevel(); ok {
		sig.ZeroGEX = &z
		switch {
		case sig.Spot > z:
			sig.Direction = DirectionBuy
		case sig.Spot < z:
			sig.Direction = DirectionSell
		}
	}
	if w, ok := p.CallWall(sig.Spot); ok {
		sig.CallWall = &w
	}
	if w, ok := p.PutWall(sig.Spot); ok {
		sig.PutWall = &w
	}
	return sig
}
