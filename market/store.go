package market

import (
	"sync"
	"time"
)

// BarStore keeps the most recent live bar and the session open per symbol.
// It is fed by the market-data feed and read by the monitor loop.
type BarStore struct {
	mu     sync.RWMutex
	latest map[string]Bar
	open   map[string]dayOpen
}

type dayOpen struct {
	day   string
	price float64
}

func NewBarStore() *BarStore {
	return &BarStore{
		latest: make(map[string]Bar),
		open:   make(map[string]dayOpen),
	}
}

// Update records b if it is not older than what is already stored.
// The first bar seen for a calendar day (UTC) sets that day's open.
func (s *BarStore) Update(b Bar) {
	if b.Symbol == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.latest[b.Symbol]; !ok || !b.Time.Before(cur.Time) {
		s.latest[b.Symbol] = b
	}

	day := dayKey(b.Time)
	if cur, ok := s.open[b.Symbol]; !ok || cur.day < day {
		s.open[b.Symbol] = dayOpen{day: day, price: b.Open}
	}
}

// Latest returns the newest bar for symbol.
func (s *BarStore) Latest(symbol string) (Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.latest[symbol]
	return b, ok
}

// DayOpen returns the opening price recorded for the day containing now.
func (s *BarStore) DayOpen(symbol string, now time.Time) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.open[symbol]
	if !ok || o.day != dayKey(now) {
		return 0, false
	}
	return o.price, true
}

// Len returns the number of symbols with a stored bar.
func (s *BarStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
