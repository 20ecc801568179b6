package state

import (
	"sync"
	"time"
)

type Position struct {
	Qty      int
	AvgEntry float64
}

type Snapshot struct {
	Position       Position
	OpenOrderCount int
	LastBarTime    time.Time
	LastTradeTime  time.Time
	LastReconciled time.Time
}

// Store is the portfolio tracker: the reconciler writes broker state into it
// and the engine reads holdings from it on the bar path.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// CurrentQuantity returns the signed net quantity held.
func (s *Store) CurrentQuantity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Position.Qty
}

func (s *Store) UpdatePosition(position Position, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Position = position
	s.snapshot.LastReconciled = at
}

func (s *Store) SetOpenOrderCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.OpenOrderCount = n
}

func (s *Store) SetLastTradeTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastTradeTime = t
}

func (s *Store) SetLastBarTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastBarTime = t
}
