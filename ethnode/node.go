package ethnode

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// TransactionRequest is the eth_sendTransaction payload for a transfer from a
// node-managed account. The node signs it with the account's key.
type TransactionRequest struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Value    *hexutil.Big   `json:"value"`
	Gas      hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
	Nonce    hexutil.Uint64 `json:"nonce"`
}

// Assert EthNode implementation
var _ EthNode = &remoteNode{}

type remoteNode struct {
	client *rpc.Client
	agent  UserAgent
}

func (n *remoteNode) NodeRPC() *rpc.Client {
	return n.client
}

func (n *remoteNode) Kind() NodeKind {
	return n.agent.Kind
}

func (n *remoteNode) UserAgent() UserAgent {
	return n.agent
}

func (n *remoteNode) ValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

func (n *remoteNode) GasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := n.client.CallContext(ctx, &result, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

func (n *remoteNode) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var result hexutil.Big
	if err := n.client.CallContext(ctx, &result, "eth_getBalance", addr, "latest"); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

func (n *remoteNode) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	var result hexutil.Uint64
	// "pending" so queued payouts don't reuse a nonce.
	if err := n.client.CallContext(ctx, &result, "eth_getTransactionCount", addr, "pending"); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (n *remoteNode) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := n.client.CallContext(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (n *remoteNode) Coinbase(ctx context.Context) (common.Address, error) {
	var result common.Address
	if err := n.client.CallContext(ctx, &result, "eth_coinbase"); err != nil {
		return common.Address{}, err
	}
	return result, nil
}

func (n *remoteNode) SendTransaction(ctx context.Context, tx TransactionRequest) (common.Hash, error) {
	var result common.Hash
	if err := n.client.CallContext(ctx, &result, "eth_sendTransaction", tx); err != nil {
		return common.Hash{}, err
	}
	logger.Printf("submitted transaction of %s wei to %s: %s", tx.Value.ToInt(), tx.To.Hex(), result.Hex())
	return result, nil
}
