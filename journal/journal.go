// Package journal records filled orders and account snapshots, and persists
// the lot ledger between runs.
package journal

import (
	"fmt"
	"time"
)

// Fill is one executed order. Lot is the acquisition price popped by a
// sell and PnL its realized profit; both are zero for buys.
type Fill struct {
	ID      string
	OrderID string
	Symbol  string
	Side    string
	Qty     float64
	Price   float64
	Lot     float64
	PnL     float64
	Reason  string
	Time    time.Time
}

// AccountSnapshot is the account value at a point in time.
type AccountSnapshot struct {
	ID        string
	Time      time.Time
	Value     float64
	Available float64
	Note      string
}

type Journal interface {
	RecordFill(Fill) error
	RecordAccount(AccountSnapshot) error
	Close() error
}

// Open builds a journal by kind: "sqlite" (path is the database file),
// "csv" (path is a directory) or "none".
func Open(kind, path string) (Journal, error) {
	switch kind {
	case "sqlite":
		return NewSQLite(path)
	case "csv":
		return NewCSVDir(path)
	case "", "none":
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown journal kind %q (want sqlite|csv|none)", kind)
	}
}

// Discard drops every record.
type Discard struct{}

func (Discard) RecordFill(Fill) error               { return nil }
func (Discard) RecordAccount(AccountSnapshot) error { return nil }
func (Discard) Close() error                        { return nil }
