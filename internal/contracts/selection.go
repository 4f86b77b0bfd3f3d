package contracts

import (
	"fmt"
	"sync"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/types"
)

// Selection is the user's pending basket, keyed by instrument key and kept
// in the order contracts were picked.
type Selection struct {
	mu    sync.Mutex
	order []string
	legs  map[string]types.Leg
}

var _ interfaces.Selection = (*Selection)(nil)

func NewSelection() *Selection {
	return &Selection{legs: make(map[string]types.Leg)}
}

// Add selects inst for lots lots. Selecting a contract again replaces its lot
// count and keeps its position in the basket.
func (s *Selection) Add(inst types.Instrument, lots int) error {
	if lots <= 0 {
		return fmt.Errorf("lots must be positive, got %d", lots)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inst.Key()
	if _, ok := s.legs[key]; !ok {
		s.order = append(s.order, key)
	}
	s.legs[key] = types.Leg{Instrument: inst, Lots: lots}
	return nil
}

func (s *Selection) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.legs[key]; !ok {
		return false
	}
	delete(s.legs, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.legs = make(map[string]types.Leg)
}

// Legs returns a copy of the basket in selection order.
func (s *Selection) Legs() []types.Leg {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Leg, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.legs[k])
	}
	return out
}

func (s *Selection) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.order...)
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}
