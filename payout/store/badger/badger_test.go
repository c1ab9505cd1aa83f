package badger

import (
	"io/ioutil"
	"math/big"
	"os"
	"testing"

	"github.com/dgraph-io/badger"
	"github.com/minepay/minepay/payout/store"
)

func TestBadgerStore(t *testing.T) {
	dirs := []string{}
	defer func() {
		for _, dir := range dirs {
			os.RemoveAll(dir)
		}
	}()

	store.TestSuite(t, func() store.Store {
		dir, err := ioutil.TempDir("", "minepaystore")
		if err != nil {
			t.Fatal(err)
		}
		dirs = append(dirs, dir)
		opts := badger.DefaultOptions(dir)
		opts.Logger = nil
		s, err := Open(opts)
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestRewardKeyPrefix(t *testing.T) {
	dir, err := ioutil.TempDir("", "minepaystore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	s, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Long hashes must not grow into the shared key prefix.
	for _, hash := range []string{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"} {
		r := store.Reward{ShareHash: hash, Amount: big.NewInt(1), Status: store.RewardPending}
		if _, err := s.AddReward(r); err != nil {
			t.Fatal(err)
		}
	}
	if got := string(rewardPrefix); got != "reward:" {
		t.Errorf("reward key prefix mutated: %q", got)
	}
	// Both rewards must still be found and retired by the reservation scan.
	if r, err := s.ReservePending(nil); err != nil {
		t.Fatal(err)
	} else if r.Int64() != 2 {
		t.Errorf("reserved %s; want 2", r)
	}
}

func TestBadgerPersistence(t *testing.T) {
	dir, err := ioutil.TempDir("", "minepaystore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	s, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	r := store.Reward{
		ShareHash: "abc",
		Amount:    big.NewInt(12345),
		Status:    store.RewardPending,
	}
	if _, err := s.AddReward(r); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Balance must survive a reopen.
	s, err = Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if b, err := s.PendingBalance(); err != nil {
		t.Errorf("unexpected error: %s", err)
	} else if b.Int64() != 12345 {
		t.Errorf("got balance %s; want 12345", b)
	}
}
