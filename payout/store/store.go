package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RewardStatus tracks whether a reward is still part of the pending balance.
// Rewards folded into a payout reservation are retired from the store rather
// than kept with a transitioned status.
type RewardStatus string

const (
	// RewardPending means the reward is counted in the pending balance.
	RewardPending RewardStatus = "pending"
)

// PayoutStatus tracks the lifecycle of a payout attempt.
type PayoutStatus string

const (
	PayoutExecuting PayoutStatus = "executing"
	PayoutCompleted PayoutStatus = "completed"
	PayoutFailed    PayoutStatus = "failed"
)

// Reward is the credit earned from a single accepted share. Rewards are
// immutable once created and are retired when folded into a payout
// reservation.
type Reward struct {
	BlockNumber uint64         `json:"block_number"`
	ShareHash   string         `json:"share_hash"`
	Amount      *big.Int       `json:"amount"`
	CreatedAt   time.Time      `json:"created_at"`
	Beneficiary common.Address `json:"beneficiary"`
	Status      RewardStatus   `json:"status"`
}

func (r *Reward) String() string {
	return fmt.Sprintf("Reward(%q, %s)", r.ShareHash, r.Amount)
}

// PayoutRecord is one finalized payout: the net amount sent to the recipient
// and the fee kept by the pool. Amount+Fee is the balance that was reserved.
type PayoutRecord struct {
	TxHash      common.Hash    `json:"tx_hash"`
	Amount      *big.Int       `json:"amount"`
	Fee         *big.Int       `json:"fee"`
	Recipient   common.Address `json:"recipient"`
	BlockNumber uint64         `json:"block_number"`
	CreatedAt   time.Time      `json:"created_at"`
	Status      PayoutStatus   `json:"status"`
}

// BalanceStatus is a snapshot of the pending balance against the payout minimum.
type BalanceStatus struct {
	Amount  *big.Int `json:"amount"`
	Minimum *big.Int `json:"minimum_payout_threshold"`
	Ready   bool     `json:"ready_for_payout"`
}

// Store is the persistence interface used by the payout engine. It should be
// goroutine-safe.
type Store interface {
	// AddReward credits the reward amount to the pending balance and records
	// the reward, in a single critical section. Returns the new pending
	// balance.
	AddReward(r Reward) (*big.Int, error)

	// PendingBalance returns the current pending balance.
	PendingBalance() (*big.Int, error)

	// ReservePending atomically reads and zeroes the pending balance, retiring
	// the rewards that were folded into it. Returns ErrBelowMinimum without
	// reserving anything when the balance is below min.
	ReservePending(min *big.Int) (*big.Int, error)

	// CreditPending returns a reserved amount to the pending balance. Used to
	// compensate a failed payout submission.
	CreditPending(amount *big.Int) error

	// AddPayout appends a finalized payout record to the history.
	AddPayout(p PayoutRecord) error

	// PayoutHistory returns payout records in completion order.
	PayoutHistory() ([]PayoutRecord, error)

	Close() error
}
