package payout

import (
	"context"
	"errors"
	"math"
	"math/big"
	"sync"
	"testing"

	"github.com/minepay/minepay/internal/fakenode"
	"github.com/minepay/minepay/payout/store"
)

const (
	testBeneficiary = "0x7a250d5630b4cf539739df2c5dacb4c659f2488d"
	testPoolWallet  = "0x1111111111111111111111111111111111111111"
)

func testEngine(t *testing.T, node *fakenode.FakeNode, cfg Config) *Engine {
	t.Helper()
	if cfg.Beneficiary == "" {
		cfg.Beneficiary = testBeneficiary
	}
	engine, err := New(node, store.MemoryStore(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestEngineConfig(t *testing.T) {
	node := fakenode.Node()
	memStore := store.MemoryStore()

	if _, err := New(node, memStore, Config{Beneficiary: "bogus"}); err == nil {
		t.Errorf("missing configuration error for bad beneficiary")
	} else if _, ok := err.(ConfigurationError); !ok {
		t.Errorf("wrong error type: %T", err)
	}
	if _, err := New(node, memStore, Config{Beneficiary: testBeneficiary, PoolWallet: "0x123"}); err == nil {
		t.Errorf("missing configuration error for bad pool wallet")
	}
	if _, err := New(node, memStore, Config{Beneficiary: testBeneficiary, FeePercent: -1}); err == nil {
		t.Errorf("missing configuration error for negative fee")
	}
	if _, err := New(node, memStore, Config{Beneficiary: testBeneficiary, FeePercent: 1}); err != nil {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestAccrueShare(t *testing.T) {
	ctx := context.Background()
	node := fakenode.Node()
	node.GasPriceWei = gwei(35)
	engine := testEngine(t, node, Config{
		FeePercent: 1,
		Threshold:  Ether(1), // out of reach
	})

	badDifficulties := map[string]float64{
		"absent":       0,
		"negative":     -1,
		"nan":          math.NaN(),
		"infinite":     math.Inf(1),
		"neg infinite": math.Inf(-1),
	}
	for name, difficulty := range badDifficulties {
		if _, err := engine.AccrueShare(ctx, Share{Hash: "a", Difficulty: difficulty}); err == nil {
			t.Errorf("missing validation error for %s difficulty", name)
		} else if _, ok := err.(ValidationError); !ok {
			t.Errorf("wrong error type for %s difficulty: %T", name, err)
		}
	}

	// 0.005 x 0.8 x 1.0 = 0.004 ether per share
	shares := []Share{
		{BlockNumber: 100, Hash: "a", Difficulty: 800_000_000},
		{BlockNumber: 100, Hash: "b", Difficulty: 800_000_000},
		{BlockNumber: 101, Hash: "c", Difficulty: 800_000_000},
	}
	for _, share := range shares {
		reward, err := engine.AccrueShare(ctx, share)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := reward.Amount, Ether(0.004); got.Cmp(want) != 0 {
			t.Errorf("got reward %s; want %s", got, want)
		}
		if reward.Status != store.RewardPending {
			t.Errorf("got status %q; want %q", reward.Status, store.RewardPending)
		}
	}

	status, err := engine.PendingBalance()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := status.Amount, Ether(0.012); got.Cmp(want) != 0 {
		t.Errorf("got pending %s; want %s", got, want)
	}
	if status.Ready {
		t.Errorf("pending %s reported ready below threshold %s", status.Amount, status.Minimum)
	}
	if node.SubmittedCount() != 0 {
		t.Errorf("unexpected submissions: %d", node.SubmittedCount())
	}
}

func TestThresholdPayout(t *testing.T) {
	ctx := context.Background()
	node := fakenode.Node()
	node.GasPriceWei = gwei(35)
	node.Block = 1234
	engine := testEngine(t, node, Config{
		PoolWallet: testPoolWallet,
		FeePercent: 1,
	})

	// Two shares stay below the 0.01 ether default threshold.
	for _, hash := range []string{"a", "b"} {
		if _, err := engine.AccrueShare(ctx, Share{Hash: hash, Difficulty: 800_000_000}); err != nil {
			t.Fatal(err)
		}
	}
	if node.SubmittedCount() != 0 {
		t.Errorf("payout submitted below threshold")
	}

	// The third share crosses it: pending 0.012 >= 0.01 triggers the payout
	// before AccrueShare returns.
	if _, err := engine.AccrueShare(ctx, Share{Hash: "c", Difficulty: 800_000_000}); err != nil {
		t.Fatal(err)
	}

	history, err := engine.PayoutHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d payouts; want 1", len(history))
	}
	record := history[0]
	if got, want := record.Amount, Ether(0.01188); got.Cmp(want) != 0 {
		t.Errorf("got payout %s; want %s", got, want)
	}
	if got, want := record.Fee, Ether(0.00012); got.Cmp(want) != 0 {
		t.Errorf("got fee %s; want %s", got, want)
	}
	if total := new(big.Int).Add(record.Amount, record.Fee); total.Cmp(Ether(0.012)) != 0 {
		t.Errorf("payout %s + fee %s != reserved 0.012 ether", record.Amount, record.Fee)
	}
	if record.Status != store.PayoutCompleted {
		t.Errorf("got status %q; want %q", record.Status, store.PayoutCompleted)
	}
	if record.BlockNumber != 1234 {
		t.Errorf("got block %d; want 1234", record.BlockNumber)
	}

	status, err := engine.PendingBalance()
	if err != nil {
		t.Fatal(err)
	}
	if status.Amount.Sign() != 0 {
		t.Errorf("pending balance not reset: %s", status.Amount)
	}

	// Payout transfer plus the independent fee transfer.
	if node.SubmittedCount() != 2 {
		t.Errorf("got %d submissions; want 2", node.SubmittedCount())
	}
}

func TestPayoutWithoutPoolWallet(t *testing.T) {
	ctx := context.Background()
	node := fakenode.Node()
	node.GasPriceWei = gwei(35)
	engine := testEngine(t, node, Config{FeePercent: 1})

	for _, hash := range []string{"a", "b", "c"} {
		if _, err := engine.AccrueShare(ctx, Share{Hash: hash, Difficulty: 800_000_000}); err != nil {
			t.Fatal(err)
		}
	}

	// Fee is still deducted, but with no pool wallet there is no fee transfer.
	if node.SubmittedCount() != 1 {
		t.Errorf("got %d submissions; want 1", node.SubmittedCount())
	}
	history, err := engine.PayoutHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d payouts; want 1", len(history))
	}
	if got, want := history[0].Fee, Ether(0.00012); got.Cmp(want) != 0 {
		t.Errorf("got fee %s; want %s", got, want)
	}
}

func TestPayoutCompensation(t *testing.T) {
	ctx := context.Background()
	node := fakenode.Node()
	node.GasPriceWei = gwei(35)
	node.SubmitErr = errors.New("insufficient funds for gas * price + value")
	engine := testEngine(t, node, Config{FeePercent: 1})

	// The threshold-triggered payout fails; the accruals must survive it.
	for _, hash := range []string{"a", "b", "c"} {
		if _, err := engine.AccrueShare(ctx, Share{Hash: hash, Difficulty: 800_000_000}); err != nil {
			t.Fatal(err)
		}
	}
	status, err := engine.PendingBalance()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := status.Amount, Ether(0.012); got.Cmp(want) != 0 {
		t.Errorf("reserved funds lost on failure: got pending %s; want %s", got, want)
	}

	// A manual trigger surfaces the failure and compensates again.
	record, err := engine.PayoutIfReady(ctx)
	if err == nil {
		t.Fatalf("missing submission error, got record: %v", record)
	}
	submissionErr, ok := err.(SubmissionError)
	if !ok {
		t.Fatalf("wrong error type: %T", err)
	}
	if got, want := submissionErr.Amount, Ether(0.012); got.Cmp(want) != 0 {
		t.Errorf("got reserved %s; want %s", got, want)
	}
	if status, err := engine.PendingBalance(); err != nil {
		t.Fatal(err)
	} else if got, want := status.Amount, Ether(0.012); got.Cmp(want) != 0 {
		t.Errorf("got pending %s; want %s", got, want)
	}
	if history, err := engine.PayoutHistory(); err != nil {
		t.Fatal(err)
	} else if len(history) != 0 {
		t.Errorf("failed payout recorded in history: %v", history)
	}

	// Once the node recovers, the balance pays out on the next trigger.
	node.SubmitErr = nil
	record, err = engine.PayoutIfReady(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if record == nil {
		t.Fatal("expected a payout record")
	}
	if total := new(big.Int).Add(record.Amount, record.Fee); total.Cmp(Ether(0.012)) != 0 {
		t.Errorf("payout %s + fee %s != reserved 0.012 ether", record.Amount, record.Fee)
	}
}

// recordFailStore rejects AddPayout while delegating everything else.
type recordFailStore struct {
	store.Store
	err error
}

func (s *recordFailStore) AddPayout(p store.PayoutRecord) error { return s.err }

func TestPayoutRecordFailure(t *testing.T) {
	ctx := context.Background()
	node := fakenode.Node()
	node.GasPriceWei = gwei(35)
	storeErr := errors.New("disk full")
	engine, err := New(node, &recordFailStore{store.MemoryStore(), storeErr}, Config{
		Beneficiary: testBeneficiary,
		FeePercent:  1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Accrue past the threshold while the node refuses submissions, so the
	// balance stays pending and we can trigger manually.
	node.SubmitErr = errors.New("nonce too low")
	for _, hash := range []string{"a", "b", "c"} {
		if _, err := engine.AccrueShare(ctx, Share{Hash: hash, Difficulty: 800_000_000}); err != nil {
			t.Fatal(err)
		}
	}
	node.SubmitErr = nil

	// The transaction lands but the record does not. The store error must not
	// masquerade as a submission failure, and the sent funds must not be
	// credited back.
	_, payErr := engine.PayoutIfReady(ctx)
	if payErr != storeErr {
		t.Fatalf("got error %v; want %v", payErr, storeErr)
	}
	if _, ok := payErr.(SubmissionError); ok {
		t.Errorf("store failure reported as a submission failure")
	}
	if node.SubmittedCount() != 1 {
		t.Errorf("got %d submissions; want 1", node.SubmittedCount())
	}
	if status, err := engine.PendingBalance(); err != nil {
		t.Fatal(err)
	} else if status.Amount.Sign() != 0 {
		t.Errorf("sent funds credited back to pending: %s", status.Amount)
	}
}

func TestPayoutTriggerNoop(t *testing.T) {
	ctx := context.Background()
	engine := testEngine(t, fakenode.Node(), Config{FeePercent: 1})

	// Nothing accrued: repeated triggers are safe no-ops.
	for i := 0; i < 3; i++ {
		record, err := engine.PayoutIfReady(ctx)
		if err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		if record != nil {
			t.Errorf("unexpected payout: %v", record)
		}
	}
}

func TestConcurrentAccrual(t *testing.T) {
	ctx := context.Background()
	node := fakenode.Node()
	node.GasPriceWei = gwei(35)
	engine := testEngine(t, node, Config{
		FeePercent: 1,
		Threshold:  Ether(100), // out of reach
	})

	const workers = 8
	const sharesPerWorker = 25
	perShare := Ether(0.004)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < sharesPerWorker; i++ {
				if _, err := engine.AccrueShare(ctx, Share{Hash: "x", Difficulty: 800_000_000}); err != nil {
					t.Error(err)
				}
			}
		}(w)
	}
	wg.Wait()

	want := new(big.Int).Mul(perShare, big.NewInt(workers*sharesPerWorker))
	status, err := engine.PendingBalance()
	if err != nil {
		t.Fatal(err)
	}
	if status.Amount.Cmp(want) != 0 {
		t.Errorf("got pending %s; want %s", status.Amount, want)
	}
}

func TestConcurrentAccrualWithPayouts(t *testing.T) {
	ctx := context.Background()
	node := fakenode.Node()
	node.GasPriceWei = gwei(35)
	perShare := Ether(0.004)
	engine := testEngine(t, node, Config{
		FeePercent: 1,
		Threshold:  new(big.Int).Mul(perShare, big.NewInt(10)),
	})

	const workers = 8
	const sharesPerWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < sharesPerWorker; i++ {
				if _, err := engine.AccrueShare(ctx, Share{Hash: "x", Difficulty: 800_000_000}); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	// No value may be lost or double-counted: everything accrued is either
	// still pending or accounted for by a payout record.
	status, err := engine.PendingBalance()
	if err != nil {
		t.Fatal(err)
	}
	history, err := engine.PayoutHistory()
	if err != nil {
		t.Fatal(err)
	}
	total := new(big.Int).Set(status.Amount)
	for _, record := range history {
		total.Add(total, record.Amount)
		total.Add(total, record.Fee)
	}
	want := new(big.Int).Mul(perShare, big.NewInt(workers*sharesPerWorker))
	if total.Cmp(want) != 0 {
		t.Errorf("accounted value %s != accrued value %s (pending %s across %d payouts)", total, want, status.Amount, len(history))
	}
	if len(history) == 0 {
		t.Errorf("expected at least one payout")
	}
}

func TestRunFeed(t *testing.T) {
	ctx := context.Background()
	node := fakenode.Node()
	node.GasPriceWei = gwei(35)
	engine := testEngine(t, node, Config{
		FeePercent: 1,
		Threshold:  Ether(1),
	})

	shares := make(chan Share)
	done := make(chan error, 1)
	go func() {
		done <- engine.Run(ctx, shares)
	}()

	shares <- Share{Hash: "a", Difficulty: 800_000_000}
	shares <- Share{Hash: "b", Difficulty: 800_000_000}
	// Malformed shares are dropped, not fatal to the feed.
	shares <- Share{Hash: "c"}
	close(shares)

	if err := <-done; err != nil {
		t.Errorf("unexpected error: %s", err)
	}
	status, err := engine.PendingBalance()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := status.Amount, Ether(0.008); got.Cmp(want) != 0 {
		t.Errorf("got pending %s; want %s", got, want)
	}
}
