package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("journal: not found")

const fillColumns = `fill_id, order_id, symbol, side, qty, price, lot, pnl, reason, time`

type scanner interface {
	Scan(dest ...any) error
}

func scanFill(s scanner) (Fill, error) {
	var f Fill
	err := s.Scan(&f.ID, &f.OrderID, &f.Symbol, &f.Side, &f.Qty, &f.Price, &f.Lot, &f.PnL, &f.Reason, &f.Time)
	f.Time = f.Time.UTC()
	return f, err
}

// GetFill returns a single fill by ID.
func (j *SQLite) GetFill(fillID string) (Fill, error) {
	row := j.db.QueryRow(`SELECT `+fillColumns+` FROM fills WHERE fill_id = ?`, fillID)
	f, err := scanFill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Fill{}, fmt.Errorf("fill %q: %w", fillID, ErrNotFound)
	}
	return f, err
}

// ListFills returns fills with time in [start, end), oldest first.
func (j *SQLite) ListFills(start, end time.Time) ([]Fill, error) {
	rows, err := j.db.Query(`SELECT `+fillColumns+` FROM fills
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, fill_id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListAccount returns account snapshots with time in [start, end).
func (j *SQLite) ListAccount(start, end time.Time) ([]AccountSnapshot, error) {
	rows, err := j.db.Query(`
		SELECT snapshot_id, time, value, available, note
		FROM account
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, snapshot_id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountSnapshot
	for rows.Next() {
		var a AccountSnapshot
		if err := rows.Scan(&a.ID, &a.Time, &a.Value, &a.Available, &a.Note); err != nil {
			return nil, err
		}
		a.Time = a.Time.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Realized is the realized profit summary over a set of fills.
type Realized struct {
	Fills       int
	Sells       int
	Wins        int
	Losses      int
	GrossProfit float64
	GrossLoss   float64
	Net         float64
}

// ProfitFactor is GrossProfit / GrossLoss, zero when there were no losses.
func (r Realized) ProfitFactor() float64 {
	if r.GrossLoss == 0 {
		return 0
	}
	return r.GrossProfit / r.GrossLoss
}

// Summarize totals realized PnL over fills.
func Summarize(fills []Fill) Realized {
	var r Realized
	for _, f := range fills {
		r.Fills++
		if f.Side != "sell" {
			continue
		}
		r.Sells++
		switch {
		case f.PnL > 0:
			r.Wins++
			r.GrossProfit += f.PnL
		case f.PnL < 0:
			r.Losses++
			r.GrossLoss -= f.PnL
		}
		r.Net += f.PnL
	}
	return r
}
