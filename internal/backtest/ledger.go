// Package backtest implements the execution simulator: the bar-by-bar event
// loop, the portfolio ledger it mutates, the metrics calculator, and the
// runner/pool that tie them to stores and strategies.
package backtest

import (
	"fmt"
	"sort"
	"sync"

	"vela/internal/domain"
)

// Ledger tracks cash and open positions for one run. The simulator is the
// single writer; the mutex only guarantees that cash and position state
// change atomically as one step per fill, so a concurrent reader (such as a
// progress snapshot) never observes the cash debit without the position
// update.
type Ledger struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*domain.Position
}

// NewLedger creates a ledger holding the given starting cash and no
// positions.
func NewLedger(initialCash float64) *Ledger {
	return &Ledger{
		cash:      initialCash,
		positions: make(map[string]*domain.Position),
	}
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Position returns the open position for symbol, if any.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions, sorted by symbol.
func (l *Ledger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// MarkToMarket values the portfolio at the given per-symbol prices: cash plus
// the signed position quantities times price. Positions whose symbol is
// missing from prices are valued at their average entry price.
func (l *Ledger) MarkToMarket(prices map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	value := l.cash
	for sym, p := range l.positions {
		price, ok := prices[sym]
		if !ok {
			price = p.AvgEntryPrice
		}
		value += p.Quantity * price
	}
	return value
}

// ApplyFill applies one executed trade: it moves cash, updates or closes the
// position, and sets fill.RealizedPnL when the fill closes or reduces an
// existing position. Entry adds recompute the average entry price as a
// weighted average; exits leave it unchanged. The whole update happens under
// one lock acquisition.
func (l *Ledger) ApplyFill(fill *domain.Fill) error {
	if fill.Quantity <= 0 {
		return fmt.Errorf("fill quantity must be positive, got %v", fill.Quantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	notional := fill.Price * fill.Quantity
	pos := l.positions[fill.Symbol]

	switch fill.Action {
	case domain.ActionBuy:
		if pos != nil && pos.Quantity < 0 {
			return fmt.Errorf("buy %s while short; cover first", fill.Symbol)
		}
		l.cash -= notional + fill.Commission
		l.addToPosition(fill, fill.Quantity)

	case domain.ActionShort:
		if pos != nil && pos.Quantity > 0 {
			return fmt.Errorf("short %s while long; sell first", fill.Symbol)
		}
		l.cash += notional - fill.Commission
		l.addToPosition(fill, -fill.Quantity)

	case domain.ActionSell:
		if pos == nil || pos.Quantity <= 0 {
			return fmt.Errorf("sell %s with no long position", fill.Symbol)
		}
		if fill.Quantity > pos.Quantity {
			return fmt.Errorf("sell %v %s exceeds open quantity %v",
				fill.Quantity, fill.Symbol, pos.Quantity)
		}
		pnl := (fill.Price - pos.AvgEntryPrice) * fill.Quantity
		fill.RealizedPnL = &pnl
		l.cash += notional - fill.Commission
		pos.Quantity -= fill.Quantity
		if pos.Quantity == 0 {
			delete(l.positions, fill.Symbol)
		}

	case domain.ActionCover:
		if pos == nil || pos.Quantity >= 0 {
			return fmt.Errorf("cover %s with no short position", fill.Symbol)
		}
		if fill.Quantity > -pos.Quantity {
			return fmt.Errorf("cover %v %s exceeds open quantity %v",
				fill.Quantity, fill.Symbol, -pos.Quantity)
		}
		pnl := (pos.AvgEntryPrice - fill.Price) * fill.Quantity
		fill.RealizedPnL = &pnl
		l.cash -= notional + fill.Commission
		pos.Quantity += fill.Quantity
		if pos.Quantity == 0 {
			delete(l.positions, fill.Symbol)
		}

	default:
		return fmt.Errorf("unknown fill action %q", fill.Action)
	}

	return nil
}

// addToPosition opens or adds to a position. signedQty is positive for buys,
// negative for shorts. Called with the lock held.
func (l *Ledger) addToPosition(fill *domain.Fill, signedQty float64) {
	pos := l.positions[fill.Symbol]
	if pos == nil {
		l.positions[fill.Symbol] = &domain.Position{
			Symbol:        fill.Symbol,
			Quantity:      signedQty,
			AvgEntryPrice: fill.Price,
			OpenedAt:      fill.Timestamp,
		}
		return
	}

	oldAbs := pos.Quantity
	if oldAbs < 0 {
		oldAbs = -oldAbs
	}
	newAbs := signedQty
	if newAbs < 0 {
		newAbs = -newAbs
	}
	pos.AvgEntryPrice = (oldAbs*pos.AvgEntryPrice + newAbs*fill.Price) / (oldAbs + newAbs)
	pos.Quantity += signedQty
}
