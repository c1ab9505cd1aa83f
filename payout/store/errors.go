package store

import "errors"

// ErrBelowMinimum is returned when a reservation is attempted while the
// pending balance is below the payout minimum.
var ErrBelowMinimum = errors.New("pending balance below payout minimum")

// ErrMalformedReward is returned when a reward is missing an amount.
var ErrMalformedReward = errors.New("malformed reward")

// ErrNegativeCredit is returned when a compensation credit is missing or
// negative. The pending balance can never be reduced by a credit.
var ErrNegativeCredit = errors.New("negative credit")
