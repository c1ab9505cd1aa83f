package fakenode

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/minepay/minepay/ethnode"
)

type call struct {
	Method string
	Args   []interface{}
}

type Calls []call

func Call(method string, args ...interface{}) call {
	return call{method, args}
}

// Node returns a FakeNode priced at a calm 10 gwei network.
func Node() *FakeNode {
	return &FakeNode{
		NodeKind:    ethnode.Geth,
		GasPriceWei: new(big.Int).Mul(big.NewInt(10), big.NewInt(params.GWei)),
		Etherbase:   common.HexToAddress("0x00000000000000000000000000000000c0ffee00"),
	}
}

// FakeNode is an implementation of ethnode.EthNode with scriptable results,
// used for testing the payout engine without a running node.
type FakeNode struct {
	NodeKind    ethnode.NodeKind
	GasPriceWei *big.Int
	BalanceWei  *big.Int
	Nonce       uint64
	Block       uint64
	Etherbase   common.Address
	SubmitErr   error // injected eth_sendTransaction failure

	mu        sync.Mutex
	calls     Calls
	submitted int
}

var _ ethnode.EthNode = &FakeNode{}

func (n *FakeNode) record(c call) {
	n.mu.Lock()
	n.calls = append(n.calls, c)
	n.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (n *FakeNode) Calls() Calls {
	n.mu.Lock()
	defer n.mu.Unlock()
	r := make(Calls, len(n.calls))
	copy(r, n.calls)
	return r
}

// SubmittedCount returns the number of accepted SendTransaction calls.
func (n *FakeNode) SubmittedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.submitted
}

func (n *FakeNode) NodeRPC() *rpc.Client        { return nil }
func (n *FakeNode) Kind() ethnode.NodeKind      { return n.NodeKind }
func (n *FakeNode) UserAgent() ethnode.UserAgent { return ethnode.UserAgent{Kind: n.NodeKind} }

func (n *FakeNode) ValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

func (n *FakeNode) GasPrice(ctx context.Context) (*big.Int, error) {
	n.record(Call("GasPrice"))
	return n.GasPriceWei, nil
}

func (n *FakeNode) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	n.record(Call("Balance", addr))
	if n.BalanceWei == nil {
		return new(big.Int), nil
	}
	return n.BalanceWei, nil
}

func (n *FakeNode) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	n.record(Call("TransactionCount", addr))
	return n.Nonce, nil
}

func (n *FakeNode) BlockNumber(ctx context.Context) (uint64, error) {
	n.record(Call("BlockNumber"))
	return n.Block, nil
}

func (n *FakeNode) Coinbase(ctx context.Context) (common.Address, error) {
	n.record(Call("Coinbase"))
	return n.Etherbase, nil
}

func (n *FakeNode) SendTransaction(ctx context.Context, tx ethnode.TransactionRequest) (common.Hash, error) {
	n.record(Call("SendTransaction", tx))
	if n.SubmitErr != nil {
		return common.Hash{}, n.SubmitErr
	}
	n.mu.Lock()
	n.submitted += 1
	hash := common.HexToHash(fmt.Sprintf("%064x", n.submitted))
	n.mu.Unlock()
	return hash, nil
}
