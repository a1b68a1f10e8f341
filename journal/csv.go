package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/pkg/id"
)

var (
	fillHeader    = []string{"fill_id", "order_id", "symbol", "side", "qty", "price", "lot", "pnl", "reason", "time"}
	accountHeader = []string{"snapshot_id", "time", "value", "available", "note"}
)

// CSV appends fills and account snapshots to two CSV files. Existing files
// are extended, not truncated.
type CSV struct {
	mu      sync.Mutex
	fills   *csv.Writer
	account *csv.Writer
	ff, af  *os.File
}

// NewCSVDir opens fills.csv and account.csv inside dir.
func NewCSVDir(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return NewCSV(filepath.Join(dir, "fills.csv"), filepath.Join(dir, "account.csv"))
}

func NewCSV(fillsPath, accountPath string) (*CSV, error) {
	ff, fw, err := openAppend(fillsPath, fillHeader)
	if err != nil {
		return nil, err
	}
	af, aw, err := openAppend(accountPath, accountHeader)
	if err != nil {
		_ = ff.Close()
		return nil, err
	}
	return &CSV{fills: fw, account: aw, ff: ff, af: af}, nil
}

func openAppend(path string, header []string) (*os.File, *csv.Writer, error) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	st, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, nil, err
	}

	w := csv.NewWriter(fh)
	if st.Size() == 0 {
		if err := w.Write(header); err != nil {
			_ = fh.Close()
			return nil, nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = fh.Close()
			return nil, nil, fmt.Errorf("write header %s: %w", path, err)
		}
	}
	return fh, w, nil
}

func (j *CSV) RecordFill(f Fill) error {
	if f.ID == "" {
		f.ID = id.At(f.Time)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.fills.Write([]string{
		f.ID,
		f.OrderID,
		f.Symbol,
		f.Side,
		num(f.Qty),
		num(f.Price),
		num(f.Lot),
		num(f.PnL),
		f.Reason,
		f.Time.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	j.fills.Flush()
	return j.fills.Error()
}

func (j *CSV) RecordAccount(a AccountSnapshot) error {
	if a.ID == "" {
		a.ID = id.At(a.Time)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.account.Write([]string{
		a.ID,
		a.Time.UTC().Format(time.RFC3339),
		num(a.Value),
		num(a.Available),
		a.Note,
	})
	if err != nil {
		return err
	}
	j.account.Flush()
	return j.account.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.fills.Flush()
	if err := j.fills.Error(); err != nil {
		return err
	}
	j.account.Flush()
	if err := j.account.Error(); err != nil {
		return err
	}
	if err := j.ff.Close(); err != nil {
		return err
	}
	return j.af.Close()
}

func num(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
