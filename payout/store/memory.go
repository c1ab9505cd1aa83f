package store

import (
	"math/big"
	"sync"
)

// MemoryStore implements an ephemeral in-memory store. It is the reference
// implementation for the conformance suite and the "memory" storage driver.
func MemoryStore() *memoryStore {
	return &memoryStore{
		pending: new(big.Int),
	}
}

// Assert Store implementation
var _ Store = &memoryStore{}

type memoryStore struct {
	mu sync.Mutex

	// Accumulated pending balance, in wei
	pending *big.Int

	// Rewards not yet folded into a payout reservation
	rewards []Reward

	// Finalized payouts, in completion order
	payouts []PayoutRecord
}

func (s *memoryStore) AddReward(r Reward) (*big.Int, error) {
	if r.Amount == nil || r.Amount.Sign() < 0 {
		return nil, ErrMalformedReward
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Add(s.pending, r.Amount)
	s.rewards = append(s.rewards, r)
	return new(big.Int).Set(s.pending), nil
}

func (s *memoryStore) PendingBalance() (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.pending), nil
}

func (s *memoryStore) ReservePending(min *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if min != nil && s.pending.Cmp(min) < 0 {
		return nil, ErrBelowMinimum
	}
	reserved := new(big.Int).Set(s.pending)
	s.pending.SetInt64(0)
	// Folded rewards are retired; only the aggregate balance and the payout
	// history matter after this point.
	s.rewards = s.rewards[:0]
	return reserved, nil
}

func (s *memoryStore) CreditPending(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeCredit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Add(s.pending, amount)
	return nil
}

func (s *memoryStore) AddPayout(p PayoutRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts = append(s.payouts, p)
	return nil
}

func (s *memoryStore) PayoutHistory() ([]PayoutRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make([]PayoutRecord, len(s.payouts))
	copy(r, s.payouts)
	return r, nil
}

func (s *memoryStore) Close() error {
	return nil
}
