package badger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/minepay/minepay/payout/store"
)

// Open returns a store.Store implementation using Badger as the storage
// driver. The store should be .Close()'d after use.
func Open(opts badger.Options) (*badgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerStore{db: db}, nil
}

var _ store.Store = &badgerStore{}

var (
	pendingKey   = []byte("balance:pending")
	payoutSeqKey = []byte("meta:payoutseq")
	rewardPrefix = []byte("reward:")
	payoutPrefix = []byte("payout:")
)

type badgerStore struct {
	db *badger.DB

	// Badger transactions are optimistic; balance writers are serialized here
	// instead of retrying conflicts.
	mu sync.Mutex
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

func (s *badgerStore) getPending(txn *badger.Txn) (*big.Int, error) {
	var pending big.Int
	if err := getItem(txn, pendingKey, &pending); err == badger.ErrKeyNotFound {
		return new(big.Int), nil
	} else if err != nil {
		return nil, err
	}
	return &pending, nil
}

func (s *badgerStore) AddReward(r store.Reward) (*big.Int, error) {
	if r.Amount == nil || r.Amount.Sign() < 0 {
		return nil, store.ErrMalformedReward
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var total *big.Int
	err := s.db.Update(func(txn *badger.Txn) error {
		pending, err := s.getPending(txn)
		if err != nil {
			return err
		}
		pending.Add(pending, r.Amount)
		key := []byte(fmt.Sprintf("%s%s", rewardPrefix, r.ShareHash))
		if err := setItem(txn, key, r); err != nil {
			return err
		}
		if err := setItem(txn, pendingKey, pending); err != nil {
			return err
		}
		total = pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

func (s *badgerStore) PendingBalance() (*big.Int, error) {
	var pending *big.Int
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		pending, err = s.getPending(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *badgerStore) ReservePending(min *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reserved *big.Int
	err := s.db.Update(func(txn *badger.Txn) error {
		pending, err := s.getPending(txn)
		if err != nil {
			return err
		}
		if min != nil && pending.Cmp(min) < 0 {
			return store.ErrBelowMinimum
		}
		reserved = pending
		if err := setItem(txn, pendingKey, new(big.Int)); err != nil {
			return err
		}
		// Retire the rewards folded into this reservation.
		keys, err := prefixKeys(txn, rewardPrefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

func (s *badgerStore) CreditPending(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return store.ErrNegativeCredit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		pending, err := s.getPending(txn)
		if err != nil {
			return err
		}
		pending.Add(pending, amount)
		return setItem(txn, pendingKey, pending)
	})
}

func (s *badgerStore) AddPayout(p store.PayoutRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		var seq uint64
		if err := getItem(txn, payoutSeqKey, &seq); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		seq += 1
		if err := setItem(txn, payoutSeqKey, seq); err != nil {
			return err
		}
		// Fixed-width keys so lexicographic iteration preserves insertion order.
		key := []byte(fmt.Sprintf("%s%016d", payoutPrefix, seq))
		return setItem(txn, key, p)
	})
}

func (s *badgerStore) PayoutHistory() ([]store.PayoutRecord, error) {
	r := []store.PayoutRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(payoutPrefix); it.ValidForPrefix(payoutPrefix); it.Next() {
			var p store.PayoutRecord
			err := it.Item().Value(func(val []byte) error {
				return decodeValue(val, &p)
			})
			if err != nil {
				return err
			}
			r = append(r, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
