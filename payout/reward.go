package payout

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// difficultyUnit normalizes share difficulty into the reward multiplier.
// Shares at or above this difficulty earn the full base reward.
const difficultyUnit = 1e9

// Gas price tiers (in gwei) for the network multiplier. Cheap gas means cheap
// payouts, so the pool can afford to reward more generously.
const (
	calmGwei = 20
	busyGwei = 50
)

// Ether converts a decimal ether amount to wei, rounding to the nearest wei.
func Ether(amount float64) *big.Int {
	return weiFromFloat(new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(params.Ether)))
}

// EtherValue converts a wei amount to a decimal ether value, for display and
// metrics only.
func EtherValue(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return f
}

func weiFromFloat(f *big.Float) *big.Int {
	wei, _ := new(big.Float).Add(f, big.NewFloat(0.5)).Int(nil)
	return wei
}

// difficultyMultiplier scales the base reward by share difficulty, capped at
// 1.0 so outlier shares cannot mint unbounded rewards.
func difficultyMultiplier(difficulty float64) float64 {
	m := difficulty / difficultyUnit
	if m > 1.0 {
		m = 1.0
	}
	return m
}

// networkMultiplier scales rewards by current congestion.
func networkMultiplier(gasPrice *big.Int) float64 {
	if gasPrice == nil {
		return 1.0
	}
	gwei := new(big.Int).Div(gasPrice, big.NewInt(params.GWei))
	switch {
	case gwei.Cmp(big.NewInt(calmGwei)) < 0:
		return 1.2
	case gwei.Cmp(big.NewInt(busyGwei)) < 0:
		return 1.0
	default:
		return 0.8
	}
}

// rewardAmount computes the wei value of one accepted share.
func rewardAmount(baseReward *big.Int, difficulty float64, gasPrice *big.Int) *big.Int {
	scale := difficultyMultiplier(difficulty) * networkMultiplier(gasPrice)
	return weiFromFloat(new(big.Float).Mul(new(big.Float).SetInt(baseReward), big.NewFloat(scale)))
}

// splitFee divides a reserved amount into the net payout and the pool fee.
// net+fee always equals reserved exactly.
func splitFee(reserved *big.Int, feeBps int64) (net, fee *big.Int) {
	fee = new(big.Int).Mul(reserved, big.NewInt(feeBps))
	fee.Div(fee, big.NewInt(10000))
	net = new(big.Int).Sub(reserved, fee)
	return net, fee
}
