package domain

// Leg names one side of a two-leg arbitrage execution.
type Leg string

const (
	LegSell Leg = "sell"
	LegBuy  Leg = "buy"
)

// ExecState is the position of an execution in its state machine:
// SellPending -> SellDone -> BuyPending -> Done. Failed and Partial are the
// terminal error states.
type ExecState string

const (
	ExecSellPending ExecState = "sell_pending"
	ExecSellDone    ExecState = "sell_done"
	ExecBuyPending  ExecState = "buy_pending"
	ExecDone        ExecState = "done"
	ExecFailed      ExecState = "failed"  // sell leg rejected, nothing traded
	ExecPartial     ExecState = "partial" // sell leg traded, buy leg failed
	ExecPlanned     ExecState = "planned" // dry run, no orders submitted
)

// Terminal reports whether no further transition is possible.
func (s ExecState) Terminal() bool {
	switch s {
	case ExecDone, ExecFailed, ExecPartial, ExecPlanned:
		return true
	}
	return false
}

// LegStatus is the outcome of a single leg.
type LegStatus string

const (
	LegStatusPending  LegStatus = "pending"
	LegStatusFilled   LegStatus = "filled"
	LegStatusRejected LegStatus = "rejected"
	LegStatusSkipped  LegStatus = "skipped"
)
