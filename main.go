package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"
	"github.com/minepay/minepay/ethnode"
	"github.com/minepay/minepay/payout"
)

// Version of the binary, assigned during build.
var Version string = "dev"

var rpcTimeout = time.Second * 5

// Options contains the flag options
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose logging."`
	Version bool   `long:"version" description:"Print version and exit."`

	Serve struct {
		Bind        string  `long:"bind" description:"Address and port to listen on." default:"0.0.0.0:8080"`
		TLSHost     string  `long:"tlshost" description:"Hostname for acquiring an ACME TLS certificate. Overrides --bind."`
		AllowOrigin string  `long:"allow-origin" description:"Value for the Access-Control-Allow-Origin header."`
		Store       string  `long:"store" description:"Storage driver. (persist|memory)" default:"persist"`
		DataDir     string  `long:"datadir" description:"Directory used by the persistent storage driver."`
		RPC         string  `long:"rpc" description:"RPC path or URL of the mining node." required:"true"`
		Beneficiary string  `long:"beneficiary" description:"Address receiving net payouts." required:"true"`
		PoolWallet  string  `long:"pool-wallet" description:"Address receiving the pool fee."`
		From        string  `long:"from" description:"Node-managed account funding payouts. Defaults to the node's coinbase."`
		Fee         float64 `long:"fee" description:"Pool fee, in percent of each payout." default:"1"`
		Threshold   float64 `long:"threshold" description:"Minimum pending balance, in ether, before a payout is sent." default:"0.01"`
		BaseReward  float64 `long:"base-reward" description:"Reward, in ether, for a full-difficulty share." default:"0.005"`
	} `command:"serve" description:"Run the payout daemon."`

	Status struct {
		Server string `long:"server" description:"URL of a running minepay daemon." default:"http://localhost:8080"`
	} `command:"status" description:"Show the pending balance of a running daemon."`

	Payout struct {
		Server string `long:"server" description:"URL of a running minepay daemon." default:"http://localhost:8080"`
	} `command:"payout" description:"Trigger a payout if the pending balance is above the minimum."`
}

const serveUsage = `Examples:
* Pay mining rewards from a local geth to a cold wallet:
  $ minepay serve --rpc=$HOME/.ethereum/geth.ipc --beneficiary=0x7a250d5630b4cf539739df2c5dacb4c659f2488d

* Take a 2% operator fee into a separate wallet:
  $ minepay serve --rpc=http://localhost:8545 --beneficiary=0x7a25...488d --pool-wallet=0x1111...1111 --fee=2
`

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

func findRPC(ctx context.Context, rpcPath string) (ethnode.EthNode, error) {
	logger.Info("Connecting to mining node:", rpcPath)
	dialCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	node, err := ethnode.Dial(dialCtx, rpcPath)
	cancel()
	if err != nil {
		err = ErrExplain{
			err,
			fmt.Sprintf(`Could not reach the RPC of the running mining node (such as Geth or Parity) on "%s". Make sure your node is running with RPC enabled, with the eth and personal APIs available. You can specify the path with the --rpc="..." flag.`, rpcPath),
		}
		return nil, err
	}
	return node, nil
}

func subcommand(cmd string, options Options) error {
	switch cmd {
	case "serve":
		return runServe(options)
	case "status":
		return runStatus(options)
	case "payout":
		return runPayout(options)
	}
	return nil
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Println(err)
		}
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp && parser.Active != nil {
			// Print additional usage help when run with --help
			switch parser.Active.Name {
			case "serve":
				exit(0, "%s", serveUsage)
			}
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logWriter := os.Stderr

	SetLogger(golog.New(logWriter, logLevel))
	if logLevel == log.Debug {
		// Enable logging from subpackages
		payout.SetLogger(logWriter)
		ethnode.SetLogger(logWriter)
	}

	cmd := "serve"
	if parser.Active != nil {
		cmd = parser.Active.Name
	}
	err = subcommand(cmd, options)
	if err == nil {
		return
	}

	switch typedErr := err.(type) {
	case net.Error:
		err = ErrExplain{err, `Disconnected from the node unexpectedly. Could be a connectivity issue or the node is down. Try again?`}
	case interface{ ErrorCode() int }:
		switch typedErr.ErrorCode() {
		case -32601:
			err = ErrExplain{err, `Missing a required RPC method. Make sure your mining node is up to date.`}
		default:
			err = ErrExplain{err, fmt.Sprintf(`Unexpected RPC error occurred: %T (code %d). Please open an issue at https://github.com/minepay/minepay`, typedErr, typedErr.ErrorCode())}
		}
	case payout.SubmissionError:
		err = ErrExplain{err, `The node rejected the payout transaction. The reserved balance was restored; it will be retried on the next trigger.`}
	case ErrExplain:
		// All good.
	default:
		err = ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation. Please open an issue at https://github.com/minepay/minepay`, err)}
	}

	if err != nil {
		exit(2, "%s failed: %s\n", cmd, err)
	}
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}
