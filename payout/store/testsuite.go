package store

import (
	"math/big"
	"testing"
)

func reward(hash string, wei int64) Reward {
	return Reward{
		ShareHash: hash,
		Amount:    big.NewInt(wei),
		Status:    RewardPending,
	}
}

// TestSuite runs a suite of tests against a store implementation.
func TestSuite(t *testing.T, newStore func() Store) {
	t.Helper()
	t.Run("Pending", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		if b, err := s.PendingBalance(); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if b.Sign() != 0 {
			t.Errorf("fresh store has non-zero balance: %s", b)
		}

		if _, err := s.AddReward(Reward{ShareHash: "noamount"}); err != ErrMalformedReward {
			t.Errorf("missing malformed reward error: %s", err)
		}

		if b, err := s.AddReward(reward("abc", 42)); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if b.Int64() != 42 {
			t.Errorf("returned wrong balance: %s", b)
		}
		if b, err := s.AddReward(reward("def", 3)); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if b.Int64() != 45 {
			t.Errorf("returned wrong balance: %s", b)
		}
		if b, err := s.PendingBalance(); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if b.Int64() != 45 {
			t.Errorf("returned wrong balance: %s", b)
		}
	})

	t.Run("Reserve", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		// Nothing accrued yet
		if _, err := s.ReservePending(big.NewInt(1)); err != ErrBelowMinimum {
			t.Errorf("missing below-minimum error: %s", err)
		}

		if _, err := s.AddReward(reward("abc", 40)); err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		if _, err := s.ReservePending(big.NewInt(50)); err != ErrBelowMinimum {
			t.Errorf("missing below-minimum error: %s", err)
		}
		// The failed reservation must not have touched the balance.
		if b, err := s.PendingBalance(); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if b.Int64() != 40 {
			t.Errorf("returned wrong balance: %s", b)
		}

		if _, err := s.AddReward(reward("def", 20)); err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		if r, err := s.ReservePending(big.NewInt(50)); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if r.Int64() != 60 {
			t.Errorf("reserved wrong amount: %s", r)
		}
		if b, err := s.PendingBalance(); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if b.Sign() != 0 {
			t.Errorf("balance not zeroed by reservation: %s", b)
		}

		// Compensation path
		if err := s.CreditPending(nil); err != ErrNegativeCredit {
			t.Errorf("missing negative credit error: %s", err)
		}
		if err := s.CreditPending(big.NewInt(-1)); err != ErrNegativeCredit {
			t.Errorf("missing negative credit error: %s", err)
		}
		if err := s.CreditPending(big.NewInt(60)); err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		if b, err := s.PendingBalance(); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if b.Int64() != 60 {
			t.Errorf("compensation lost funds: %s", b)
		}
	})

	t.Run("History", func(t *testing.T) {
		s := newStore()
		defer s.Close()

		if history, err := s.PayoutHistory(); err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if len(history) != 0 {
			t.Errorf("fresh store has history: %v", history)
		}

		payouts := []PayoutRecord{
			{Amount: big.NewInt(99), Fee: big.NewInt(1), Status: PayoutCompleted},
			{Amount: big.NewInt(198), Fee: big.NewInt(2), Status: PayoutCompleted},
			{Amount: big.NewInt(297), Fee: big.NewInt(3), Status: PayoutCompleted},
		}
		for _, p := range payouts {
			if err := s.AddPayout(p); err != nil {
				t.Errorf("unexpected error: %s", err)
			}
		}

		history, err := s.PayoutHistory()
		if err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		if len(history) != len(payouts) {
			t.Fatalf("got %d records; want %d", len(history), len(payouts))
		}
		for i, p := range payouts {
			if got, want := history[i].Amount.Int64(), p.Amount.Int64(); got != want {
				t.Errorf("record %d out of order: got amount %d; want %d", i, got, want)
			}
		}
	})
}
