// Package ledger tracks open cost-basis lots per symbol (the checkbook) and
// recently exited positions (the sold-book).
//
// The ledger is internally synchronized so readers such as the risk manager
// can inspect it at any time. Mutations are expected to happen only inside
// the agent's trade lock so that order placement and bookkeeping stay atomic.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrEmptyLedger is an invariant fault: a sell was attempted for a symbol
// with no recorded lots.
var ErrEmptyLedger = errors.New("lot ledger is empty")

// Lot is one recorded acquisition.
type Lot struct {
	Price float64
	Qty   float64
}

// SoldEntry records the exit of a position whose lots were fully popped.
type SoldEntry struct {
	Symbol    string
	ExitPrice float64
	ExitTime  time.Time
}

// Snapshot is a point-in-time copy of the full ledger.
type Snapshot struct {
	Lots map[string][]Lot
	Sold map[string]SoldEntry
}

// Store persists ledger snapshots.
type Store interface {
	SaveLedger(Snapshot) error
	LoadLedger() (Snapshot, error)
}

type Ledger struct {
	mu   sync.RWMutex
	lots map[string][]Lot
	sold map[string]SoldEntry
}

func New() *Ledger {
	return &Ledger{
		lots: make(map[string][]Lot),
		sold: make(map[string]SoldEntry),
	}
}

// Append records a filled buy. A lot without a positive quantity counts as
// one unit. The symbol leaves the sold-book.
func (l *Ledger) Append(symbol string, lot Lot) {
	if !(lot.Qty > 0) {
		lot.Qty = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lots[symbol] = append(l.lots[symbol], lot)
	delete(l.sold, symbol)
}

// Pop takes qty out of the most recent lot for a filled sell. A qty that
// is not positive, or covers the whole lot, removes the lot. A smaller qty
// shrinks it. When that empties the symbol's lots, the symbol is recorded
// in the sold-book at exitPrice/at. It returns the lot price with the
// quantity actually taken.
func (l *Ledger) Pop(symbol string, qty, exitPrice float64, at time.Time) (lot Lot, emptied bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lots := l.lots[symbol]
	if len(lots) == 0 {
		return Lot{}, false, fmt.Errorf("sell %s: %w", symbol, ErrEmptyLedger)
	}

	last := len(lots) - 1
	lot = lots[last]
	if qty > 0 && qty < lot.Qty {
		lots[last].Qty -= qty
		lot.Qty = qty
		return lot, false, nil
	}

	lots = lots[:last]
	if len(lots) > 0 {
		l.lots[symbol] = lots
		return lot, false, nil
	}
	l.closeOut(symbol, exitPrice, at)
	return lot, true, nil
}

// Flatten drops every remaining lot for symbol and records the exit in the
// sold-book. It returns the dropped lots.
func (l *Ledger) Flatten(symbol string, exitPrice float64, at time.Time) []Lot {
	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := l.lots[symbol]
	if len(dropped) == 0 {
		return nil
	}
	l.closeOut(symbol, exitPrice, at)
	return dropped
}

func (l *Ledger) closeOut(symbol string, exitPrice float64, at time.Time) {
	delete(l.lots, symbol)
	l.sold[symbol] = SoldEntry{Symbol: symbol, ExitPrice: exitPrice, ExitTime: at}
}

// Lots returns a copy of the symbol's lots, oldest first.
func (l *Ledger) Lots(symbol string) []Lot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Lot(nil), l.lots[symbol]...)
}

// HasLots reports whether the symbol has any open lot.
func (l *Ledger) HasLots(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.lots[symbol]) > 0
}

// LastLot returns the most recent acquisition.
func (l *Ledger) LastLot(symbol string) (Lot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lots := l.lots[symbol]
	if len(lots) == 0 {
		return Lot{}, false
	}
	return lots[len(lots)-1], true
}

// Quantity is the total quantity across the symbol's lots.
func (l *Ledger) Quantity(symbol string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q := 0.0
	for _, lot := range l.lots[symbol] {
		q += lot.Qty
	}
	return q
}

// AveragePrice returns the quantity-weighted mean lot price.
func (l *Ledger) AveragePrice(symbol string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lots := l.lots[symbol]
	if len(lots) == 0 {
		return 0, false
	}
	var cost, qty float64
	for _, lot := range lots {
		cost += lot.Price * lot.Qty
		qty += lot.Qty
	}
	return cost / qty, true
}
// Symbols returns the symbols with open lots, sorted.
func (l *Ledger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.lots))
	for sym := range l.lots {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Sold returns the sold-book entry for symbol.
func (l *Ledger) Sold(symbol string) (SoldEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.sold[symbol]
	return e, ok
}

// SoldEntries returns all sold-book entries ordered by symbol.
func (l *Ledger) SoldEntries() []SoldEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SoldEntry, 0, len(l.sold))
	for _, e := range l.sold {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ForgetSold drops a sold-book entry without a rebuy.
func (l *Ledger) ForgetSold(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sold, symbol)
}

// Snapshot returns a deep copy of the ledger.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Snapshot{
		Lots: make(map[string][]Lot, len(l.lots)),
		Sold: make(map[string]SoldEntry, len(l.sold)),
	}
	for sym, lots := range l.lots {
		s.Lots[sym] = append([]Lot(nil), lots...)
	}
	for sym, e := range l.sold {
		s.Sold[sym] = e
	}
	return s
}

// Restore replaces the ledger contents with s. Empty lot lists and lots
// without a positive quantity are dropped.
func (l *Ledger) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lots = make(map[string][]Lot, len(s.Lots))
	l.sold = make(map[string]SoldEntry, len(s.Sold))
	for sym, lots := range s.Lots {
		var kept []Lot
		for _, lot := range lots {
			if lot.Qty > 0 {
				kept = append(kept, lot)
			}
		}
		if len(kept) > 0 {
			l.lots[sym] = kept
		}
	}
	for sym, e := range s.Sold {
		l.sold[sym] = e
	}
}
