package payout

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/minepay/minepay/ethnode"
	"github.com/minepay/minepay/metrics"
	"github.com/minepay/minepay/payout/store"
)

// Engine defaults, in ether.
const (
	DefaultThreshold  = 0.01
	DefaultBaseReward = 0.005
)

// payoutGasLimit is the gas allowance for a plain value transfer.
const payoutGasLimit = 21000

// Share is one accepted proof of work submitted by the mining engine.
type Share struct {
	BlockNumber uint64  `json:"block_number"`
	Hash        string  `json:"hash"`
	Difficulty  float64 `json:"difficulty"`
}

// Config contains the engine options.
type Config struct {
	// Beneficiary is the address receiving net payouts. Required.
	Beneficiary string
	// PoolWallet receives the pool fee. Optional; fee transfers are skipped
	// when unset.
	PoolWallet string
	// From is the node-managed account funding payout transactions. The
	// node's coinbase is used when unset.
	From string
	// FeePercent is the share of each payout kept by the pool, in percent.
	FeePercent float64
	// Threshold is the minimum pending balance, in wei, before a payout is
	// sent. Defaults to DefaultThreshold ether.
	Threshold *big.Int
	// BaseReward is the reward, in wei, for a full-difficulty share. Defaults
	// to DefaultBaseReward ether.
	BaseReward *big.Int
	// Metrics collectors to update. Optional.
	Metrics *metrics.Metrics
}

// Engine accrues mining rewards into a pending balance and converts it into
// an on-chain payout, minus the pool fee, once the balance crosses the
// configured minimum.
type Engine struct {
	node    ethnode.EthNode
	store   store.Store
	metrics *metrics.Metrics

	beneficiary common.Address
	poolWallet  *common.Address
	from        *common.Address
	feeBps      int64
	threshold   *big.Int
	baseReward  *big.Int

	mu       sync.Mutex
	gasPrice *big.Int // last sampled network gas price
	inflight bool     // a payout is reserving or submitting
}

// New validates the configuration and returns an Engine backed by the given
// node and store.
func New(node ethnode.EthNode, storeDriver store.Store, cfg Config) (*Engine, error) {
	if !node.ValidAddress(cfg.Beneficiary) {
		return nil, ConfigurationError{"beneficiary", fmt.Sprintf("invalid address %q", cfg.Beneficiary)}
	}
	if cfg.FeePercent < 0 || cfg.FeePercent > 100 {
		return nil, ConfigurationError{"fee", fmt.Sprintf("fee percent out of range: %v", cfg.FeePercent)}
	}
	e := &Engine{
		node:        node,
		store:       storeDriver,
		metrics:     cfg.Metrics,
		beneficiary: common.HexToAddress(cfg.Beneficiary),
		feeBps:      int64(math.Round(cfg.FeePercent * 100)),
		threshold:   cfg.Threshold,
		baseReward:  cfg.BaseReward,
	}
	if cfg.PoolWallet != "" {
		if !node.ValidAddress(cfg.PoolWallet) {
			return nil, ConfigurationError{"pool-wallet", fmt.Sprintf("invalid address %q", cfg.PoolWallet)}
		}
		addr := common.HexToAddress(cfg.PoolWallet)
		e.poolWallet = &addr
	}
	if cfg.From != "" {
		if !node.ValidAddress(cfg.From) {
			return nil, ConfigurationError{"from", fmt.Sprintf("invalid address %q", cfg.From)}
		}
		addr := common.HexToAddress(cfg.From)
		e.from = &addr
	}
	if e.threshold == nil {
		e.threshold = Ether(DefaultThreshold)
	}
	if e.baseReward == nil {
		e.baseReward = Ether(DefaultBaseReward)
	}
	return e, nil
}

// Start samples the network gas price that feeds the reward multiplier. The
// sample is only updated by explicit RefreshGasPrice calls after this; the
// engine does not poll.
func (e *Engine) Start(ctx context.Context) error {
	return e.RefreshGasPrice(ctx)
}

// RefreshGasPrice replaces the cached gas price sample with the node's
// current estimate.
func (e *Engine) RefreshGasPrice(ctx context.Context) error {
	price, err := e.node.GasPrice(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.gasPrice = price
	e.mu.Unlock()
	logger.Printf("sampled gas price: %s wei", price)
	return nil
}

// AccrueShare credits the reward for one accepted share and triggers a payout
// before returning when the new pending balance crosses the minimum. A payout
// failure is compensated and logged rather than surfaced, since the accrual
// itself succeeded.
func (e *Engine) AccrueShare(ctx context.Context, share Share) (*store.Reward, error) {
	// NaN compares false against everything, so reject non-finite values
	// explicitly before they reach the big.Float reward math.
	if math.IsNaN(share.Difficulty) || math.IsInf(share.Difficulty, 0) || share.Difficulty <= 0 {
		return nil, ValidationError{fmt.Sprintf("difficulty must be a positive finite number, got %v", share.Difficulty)}
	}
	e.mu.Lock()
	gasPrice := e.gasPrice
	e.mu.Unlock()

	reward := store.Reward{
		BlockNumber: share.BlockNumber,
		ShareHash:   share.Hash,
		Amount:      rewardAmount(e.baseReward, share.Difficulty, gasPrice),
		CreatedAt:   time.Now(),
		Beneficiary: e.beneficiary,
		Status:      store.RewardPending,
	}
	pending, err := e.store.AddReward(reward)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.SharesAccrued.Inc()
		e.metrics.RewardedEther.Add(EtherValue(reward.Amount))
		// The gauge tracks the last observed balance; interleaved accruals may
		// publish out of order, which only skews the gauge transiently.
		e.metrics.PendingEther.Set(EtherValue(pending))
	}
	logger.Printf("accrued %s wei for share %s (pending: %s wei)", reward.Amount, shortHash(share.Hash), pending)

	if pending.Cmp(e.threshold) >= 0 {
		if _, err := e.PayoutIfReady(ctx); err != nil {
			// The reserved amount is already back in the pending balance.
			logger.Printf("threshold payout failed: %s", err)
		}
	}
	return &reward, nil
}

// PayoutIfReady reserves the entire pending balance and submits it on-chain.
// It returns nil when the balance is below the minimum or another payout is
// already in flight. A rejected submission credits the reserved amount back
// before the SubmissionError is returned, so no funds are lost.
func (e *Engine) PayoutIfReady(ctx context.Context) (*store.PayoutRecord, error) {
	e.mu.Lock()
	if e.inflight {
		e.mu.Unlock()
		return nil, nil
	}
	e.inflight = true
	gasPrice := e.gasPrice
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inflight = false
		e.mu.Unlock()
	}()

	reserved, err := e.store.ReservePending(e.threshold)
	if err == store.ErrBelowMinimum {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	record, err := e.submit(ctx, reserved, gasPrice)
	if err != nil {
		if creditErr := e.store.CreditPending(reserved); creditErr != nil {
			// Losing a reserved balance is unrecoverable; make it loud.
			logger.Printf("CRITICAL: failed to restore reserved balance of %s wei: %s", reserved, creditErr)
		}
		if e.metrics != nil {
			e.metrics.PayoutsFailed.Inc()
		}
		logger.Printf("payout %s: restored %s wei to the pending balance: %s", store.PayoutFailed, reserved, err)
		return nil, SubmissionError{Amount: reserved, Cause: err}
	}
	if err := e.store.AddPayout(*record); err != nil {
		// The transaction is already on-chain. Preserve the record in the log
		// so the audit trail survives the store failure.
		logger.Printf("CRITICAL: payout %s of %s wei (fee %s wei) to %s could not be recorded: %s",
			record.TxHash.Hex(), record.Amount, record.Fee, record.Recipient.Hex(), err)
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.PayoutsCompleted.Inc()
		// The gauge tracks the last observed balance; it can lag a concurrent
		// accrual until that accrual's own update lands.
		if pending, err := e.store.PendingBalance(); err == nil {
			e.metrics.PendingEther.Set(EtherValue(pending))
		}
	}
	logger.Printf("paid out %s wei to %s (fee: %s wei): %s", record.Amount, record.Recipient.Hex(), record.Fee, record.TxHash.Hex())
	return record, nil
}

// submit builds and sends the payout transaction, plus the independent fee
// transfer when a pool wallet is configured.
func (e *Engine) submit(ctx context.Context, reserved *big.Int, gasPrice *big.Int) (*store.PayoutRecord, error) {
	net, fee := splitFee(reserved, e.feeBps)
	record := &store.PayoutRecord{
		Amount:    net,
		Fee:       fee,
		Recipient: e.beneficiary,
		CreatedAt: time.Now(),
		Status:    store.PayoutExecuting,
	}

	if gasPrice == nil {
		var err error
		if gasPrice, err = e.node.GasPrice(ctx); err != nil {
			return nil, err
		}
	}
	from := common.Address{}
	if e.from != nil {
		from = *e.from
	} else {
		var err error
		if from, err = e.node.Coinbase(ctx); err != nil {
			return nil, err
		}
	}
	nonce, err := e.node.TransactionCount(ctx, from)
	if err != nil {
		return nil, err
	}
	blockNumber, err := e.node.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	txHash, err := e.node.SendTransaction(ctx, ethnode.TransactionRequest{
		From:     from,
		To:       e.beneficiary,
		Value:    (*hexutil.Big)(net),
		Gas:      payoutGasLimit,
		GasPrice: (*hexutil.Big)(gasPrice),
		Nonce:    hexutil.Uint64(nonce),
	})
	if err != nil {
		return nil, err
	}

	// The fee transfer is independent of the payout: its failure must not
	// unwind an already-submitted payout.
	if e.poolWallet != nil && fee.Sign() > 0 {
		_, feeErr := e.node.SendTransaction(ctx, ethnode.TransactionRequest{
			From:     from,
			To:       *e.poolWallet,
			Value:    (*hexutil.Big)(fee),
			Gas:      payoutGasLimit,
			GasPrice: (*hexutil.Big)(gasPrice),
			Nonce:    hexutil.Uint64(nonce + 1),
		})
		if feeErr != nil {
			logger.Printf("fee transfer of %s wei to %s failed: %s", fee, e.poolWallet.Hex(), feeErr)
		}
	}

	record.TxHash = txHash
	record.BlockNumber = blockNumber
	record.Status = store.PayoutCompleted
	return record, nil
}

// PendingBalance returns a snapshot of the pending balance against the payout
// minimum.
func (e *Engine) PendingBalance() (store.BalanceStatus, error) {
	pending, err := e.store.PendingBalance()
	if err != nil {
		return store.BalanceStatus{}, err
	}
	return store.BalanceStatus{
		Amount:  pending,
		Minimum: new(big.Int).Set(e.threshold),
		Ready:   pending.Cmp(e.threshold) >= 0,
	}, nil
}

// PayoutHistory returns finalized payouts in completion order.
func (e *Engine) PayoutHistory() ([]store.PayoutRecord, error) {
	return e.store.PayoutHistory()
}

// Run consumes accepted shares from the mining engine until ctx is done or
// the channel is closed.
func (e *Engine) Run(ctx context.Context, shares <-chan Share) error {
	for {
		select {
		case share, ok := <-shares:
			if !ok {
				return nil
			}
			if _, err := e.AccrueShare(ctx, share); err != nil {
				logger.Printf("dropping share %s: %s", shortHash(share.Hash), err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
