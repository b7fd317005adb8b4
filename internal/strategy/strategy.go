// Package strategy defines the trading-rule contract of a simulation run and
// its built-in variants. A strategy is polymorphic over one capability: given
// the bar history up to and including the current bar, emit zero or one trade
// intent.
//
// Variants keep incremental indicator accumulators internally; those are a
// deterministic function of the bars fed so far, never decision state. The
// decision state that gates emissions (the side of the last emitted intent)
// is owned by the caller and passed through every GenerateSignal call, so
// replays and concurrent per-instrument runs cannot cross-contaminate.
package strategy

import (
	"github.com/moznion/go-optional"

	"github.com/stratlab/backsim/internal/types"
)

// Strategy is the pluggable trading rule the simulation driver consults once
// per bar. Implementations must treat the history as read-only and must not
// retain it between calls. A strategy instance belongs to exactly one run.
type Strategy interface {
	// Name returns the display name stamped onto reports and orders.
	Name() string
	// WarmupPeriod returns the minimum number of bars the variant must see
	// before it can emit; calls during warm-up return no intent, not an error.
	WarmupPeriod() int
	// GenerateSignal inspects the history prefix ending at the current bar
	// and returns at most one intent plus the updated signal state. The
	// caller invokes it exactly once per bar, in bar order.
	GenerateSignal(history *History, state SignalState) (optional.Option[types.TradeIntent], SignalState, error)
}

// SignalState is the caller-owned decision state threaded through
// GenerateSignal: the side of the last emitted intent. It gates duplicate
// same-side emissions and sells before any buy.
type SignalState struct {
	LastSide optional.Option[types.Side]
}

// LastIs reports whether the last emitted intent had the given side.
func (s SignalState) LastIs(side types.Side) bool {
	return s.LastSide.IsSome() && s.LastSide.Unwrap() == side
}

// withLast returns the state advanced by an emission of the given side.
func (s SignalState) withLast(side types.Side) SignalState {
	return SignalState{LastSide: optional.Some(side)}
}

// History is the strategy-facing view of the bars seen so far. The driver
// pushes the current bar before querying the strategy, so the view never
// contains future bars. Retention may be bounded to cap memory on long
// replays; the absolute bar count keeps counting either way, and indicator
// accumulators carry warm state, so bounding retention never resets warm-up.
type History struct {
	bars    []types.Bar
	maxBars int
	seen    int
}

// NewHistory creates a history retaining at most maxBars bars; zero retains
// everything.
func NewHistory(maxBars int) *History {
	return &History{
		bars:    make([]types.Bar, 0),
		maxBars: maxBars,
	}
}

// Push appends the next bar, evicting the oldest retained bar if the
// retention cap is hit.
func (h *History) Push(bar types.Bar) {
	h.bars = append(h.bars, bar)
	h.seen++

	if h.maxBars > 0 && len(h.bars) > h.maxBars {
		h.bars = h.bars[1:]
	}
}

// Len returns the number of retained bars.
func (h *History) Len() int {
	return len(h.bars)
}

// TotalSeen returns the absolute number of bars pushed, ignoring retention.
func (h *History) TotalSeen() int {
	return h.seen
}

// Last returns the current bar, if any bar has been pushed.
func (h *History) Last() (types.Bar, bool) {
	if len(h.bars) == 0 {
		return types.Bar{}, false
	}

	return h.bars[len(h.bars)-1], true
}

// sizedIntent converts a currency budget into a base-unit intent at the
// bar's close. All built-in variants size this way.
func sizedIntent(side types.Side, positionSize float64, bar types.Bar, rationale string) optional.Option[types.TradeIntent] {
	if bar.Close <= 0 {
		return optional.None[types.TradeIntent]()
	}

	return optional.Some(types.TradeIntent{
		Side:      side,
		Quantity:  positionSize / bar.Close,
		Rationale: rationale,
	})
}

func noIntent() optional.Option[types.TradeIntent] {
	return optional.None[types.TradeIntent]()
}
