package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/ledger"
	"github.com/Zia-Rashid/Krusty-Krab/pkg/id"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Journal and a ledger.Store backed by one database file.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	if err := migrateLotsQty(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func migrateLotsQty(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info('lots')`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == "qty" {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()
	_, err = db.Exec(lotsQtyMigration)
	return err
}

func (j *SQLite) RecordFill(f Fill) error {
	if f.ID == "" {
		f.ID = id.At(f.Time)
	}
	_, err := j.db.Exec(`
		INSERT INTO fills
		(fill_id, order_id, symbol, side, qty, price, lot, pnl, reason, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OrderID, f.Symbol, f.Side, f.Qty, f.Price, f.Lot, f.PnL, f.Reason, f.Time.UTC(),
	)
	return err
}

func (j *SQLite) RecordAccount(a AccountSnapshot) error {
	if a.ID == "" {
		a.ID = id.At(a.Time)
	}
	_, err := j.db.Exec(`
		INSERT INTO account
		(snapshot_id, time, value, available, note)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Time.UTC(), a.Value, a.Available, a.Note,
	)
	return err
}

// SaveLedger replaces the stored ledger with s in one transaction.
func (j *SQLite) SaveLedger(s ledger.Snapshot) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM lots`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sold`); err != nil {
		return err
	}
	for sym, lots := range s.Lots {
		for seq, lot := range lots {
			if _, err := tx.Exec(`INSERT INTO lots (symbol, seq, price, qty) VALUES (?, ?, ?, ?)`,
				sym, seq, lot.Price, lot.Qty); err != nil {
				return err
			}
		}
	}
	for sym, e := range s.Sold {
		if _, err := tx.Exec(`INSERT INTO sold (symbol, exit_price, exit_time) VALUES (?, ?, ?)`,
			sym, e.ExitPrice, e.ExitTime.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadLedger returns the stored ledger, empty when nothing was saved.
func (j *SQLite) LoadLedger() (ledger.Snapshot, error) {
	s := ledger.Snapshot{
		Lots: make(map[string][]ledger.Lot),
		Sold: make(map[string]ledger.SoldEntry),
	}

	rows, err := j.db.Query(`SELECT symbol, price, qty FROM lots ORDER BY symbol, seq`)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sym string
			lot ledger.Lot
		)
		if err := rows.Scan(&sym, &lot.Price, &lot.Qty); err != nil {
			return s, err
		}
		s.Lots[sym] = append(s.Lots[sym], lot)
	}
	if err := rows.Err(); err != nil {
		return s, err
	}
	_ = rows.Close()

	srows, err := j.db.Query(`SELECT symbol, exit_price, exit_time FROM sold`)
	if err != nil {
		return s, err
	}
	defer srows.Close()
	for srows.Next() {
		var (
			e  ledger.SoldEntry
			at time.Time
		)
		if err := srows.Scan(&e.Symbol, &e.ExitPrice, &at); err != nil {
			return s, err
		}
		e.ExitTime = at.UTC()
		s.Sold[e.Symbol] = e
	}
	return s, srows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

var _ ledger.Store = (*SQLite)(nil)
