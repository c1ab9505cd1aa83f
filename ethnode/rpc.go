package ethnode

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// NodeKind represents the different kinds of node implementations we know about.
type NodeKind int

const (
	Unknown NodeKind = iota // We'll treat unknown as Geth, just in case.
	Geth
	Parity
	Besu
)

func (n NodeKind) String() string {
	switch n {
	case Geth:
		return "geth"
	case Parity:
		return "parity"
	case Besu:
		return "besu"
	default:
		return "unknown"
	}
}

// NetworkID represents the Ethereum network chain.
type NetworkID int

const (
	UnknownNetwork NetworkID = 0

	Mainnet NetworkID = 1
	Ropsten NetworkID = 3
	Rinkeby NetworkID = 4
	Goerli  NetworkID = 5
	Kovan   NetworkID = 42
)

func (id NetworkID) String() string {
	switch id {
	case Mainnet:
		return "mainnet"
	case Ropsten:
		return "ropsten"
	case Rinkeby:
		return "rinkeby"
	case Goerli:
		return "goerli"
	case Kovan:
		return "kovan"
	}
	return "unknown"
}

// UserAgent is the metadata about the node client.
type UserAgent struct {
	Version     string `json:"version"`      // Result of web3_clientVersion
	EthProtocol string `json:"eth_protocol"` // Result of eth_protocolVersion

	// Parsed/derived values
	Kind    NodeKind  `json:"kind"`    // Node implementation
	Network NetworkID `json:"network"` // Network ID
}

// ParseUserAgent takes string values as output from the web3 RPC for
// web3_clientVersion, eth_protocolVersion, and net_version. It returns a
// parsed user agent metadata.
func ParseUserAgent(clientVersion, protocolVersion, netVersion string) (*UserAgent, error) {
	networkID, err := strconv.Atoi(netVersion)
	if err != nil {
		return nil, err
	}
	agent := &UserAgent{
		Version:     clientVersion,
		EthProtocol: protocolVersion,
		Network:     NetworkID(networkID),
	}
	if strings.HasPrefix(agent.Version, "Geth/") {
		agent.Kind = Geth
	} else if strings.HasPrefix(agent.Version, "besu/") {
		agent.Kind = Besu
	} else if strings.HasPrefix(agent.Version, "Parity-Ethereum/") || strings.HasPrefix(agent.Version, "Parity/") {
		agent.Kind = Parity
	}
	return agent, nil
}

// EthNode is the ledger surface the payout engine depends on: pricing reads
// and transaction submission against a node-managed account.
type EthNode interface {
	NodeRPC() *rpc.Client

	// Kind returns the kind of node this is.
	Kind() NodeKind
	// UserAgent returns the versions of the client.
	UserAgent() UserAgent
	// ValidAddress reports whether address is a well-formed chain address.
	ValidAddress(address string) bool
	// GasPrice returns the node's current gas price estimate, in wei.
	GasPrice(ctx context.Context) (*big.Int, error)
	// Balance returns the current balance of addr, in wei.
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	// TransactionCount returns the next usable nonce for addr, including
	// pending transactions.
	TransactionCount(ctx context.Context, addr common.Address) (uint64, error)
	// BlockNumber returns the current sync'd block number.
	BlockNumber(ctx context.Context) (uint64, error)
	// Coinbase returns the node's mining beneficiary account.
	Coinbase(ctx context.Context) (common.Address, error)
	// SendTransaction submits a value transfer from a node-managed account.
	SendTransaction(ctx context.Context, tx TransactionRequest) (common.Hash, error)
}

// Dial is a wrapper around go-ethereum/rpc.Dial with client detection.
func Dial(ctx context.Context, uri string) (EthNode, error) {
	client, err := rpc.DialContext(ctx, uri)
	if err != nil {
		return nil, err
	}

	return RemoteNode(client)
}

// DetectClient queries the RPC API to determine which kind of node is running.
func DetectClient(client *rpc.Client) (*UserAgent, error) {
	var clientVersion string
	if err := client.Call(&clientVersion, "web3_clientVersion"); err != nil {
		return nil, err
	}
	var protocolVersion string
	if err := client.Call(&protocolVersion, "eth_protocolVersion"); err != nil {
		return nil, err
	}
	var netVersion string
	if err := client.Call(&netVersion, "net_version"); err != nil {
		return nil, err
	}
	return ParseUserAgent(clientVersion, protocolVersion, netVersion)
}

// RemoteNode detects the node kind and returns an EthNode against it.
func RemoteNode(client *rpc.Client) (EthNode, error) {
	agent, err := DetectClient(client)
	if err != nil {
		return nil, err
	}
	logger.Printf("connected to %s node on %s", agent.Kind, agent.Network)
	return &remoteNode{
		agent:  *agent,
		client: client,
	}, nil
}
