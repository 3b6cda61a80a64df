package engine

import (
	"fmt"

	"github.com/kwhitaker/zerogex/internal/gex"
	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
)

// EntryPolicy decides whether the current signal justifies opening a leg on
// each side. The structural guards (per-side cap, duplicate strike, wall and
// price availability) live in the engine; policies only read the signal and
// the current book.
type EntryPolicy interface {
	Name() string
	EnterCall(sig *gex.Signal, led *ledger.Ledger) bool
	EnterPut(sig *gex.Signal, led *ledger.Ledger) bool
}

// DirectionalPolicy opens legs only in the direction of the zero-GEX read:
// calls on BUY, puts on SELL.
type DirectionalPolicy struct{}

func (DirectionalPolicy) Name() string { return "directional" }

func (DirectionalPolicy) EnterCall(sig *gex.Signal, _ *ledger.Ledger) bool {
	return sig.Direction == gex.DirectionBuy
}

func (DirectionalPolicy) EnterPut(sig *gex.Signal, _ *ledger.Ledger) bool {
	return sig.Direction == gex.DirectionSell
}

// HedgedPolicy adds hedge balancing on top of the directional read: a filled
// leg on one side pulls in the opposite side when it is empty, so the book
// tends toward a strangle.
type HedgedPolicy struct{}

func (HedgedPolicy) Name() string { return "hedged" }

func (HedgedPolicy) EnterCall(sig *gex.Signal, led *ledger.Ledger) bool {
	if sig.Direction == gex.DirectionBuy {
		return true
	}
	return led.HasFilled(models.LegTypePut) && !led.HasFilled(models.LegTypeCall)
}

func (HedgedPolicy) EnterPut(sig *gex.Signal, led *ledger.Ledger) bool {
	if sig.Direction == gex.DirectionSell {
		return true
	}
	return led.HasFilled(models.LegTypeCall) && !led.HasFilled(models.LegTypePut)
}

// PolicyByName resolves a policy from its config name.
func PolicyByName(name string) (EntryPolicy, error) {
	switch name {
	case "directional":
		return DirectionalPolicy{}, nil
	case "hedged":
		return HedgedPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown entry policy %q", name)
}
