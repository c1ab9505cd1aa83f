package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/dgraph-io/badger"
	"github.com/minepay/minepay/metrics"
	"github.com/minepay/minepay/payout"
	"github.com/minepay/minepay/payout/store"
	badgerStore "github.com/minepay/minepay/payout/store/badger"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

// findDataDir returns a valid data dir, will create it if it doesn't
// exist.
func findDataDir(overridePath string) (string, error) {
	path := overridePath
	if path == "" {
		path = xdg.New("minepay", "daemon").DataHome()
	}
	err := os.MkdirAll(path, 0700)
	return path, err
}

func runServe(options Options) error {
	var storeDriver store.Store
	switch options.Serve.Store {
	case "memory":
		storeDriver = store.MemoryStore()
	case "persist", "badger":
		dir, err := findDataDir(options.Serve.DataDir)
		if err != nil {
			return err
		}
		badgerOpts := badger.DefaultOptions(dir)
		storeDriver, err = badgerStore.Open(badgerOpts)
		if err != nil {
			return err
		}
		logger.Infof("Persistent store using badger backend: %s", dir)
	default:
		return errors.New("storage driver not implemented")
	}
	defer storeDriver.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := findRPC(ctx, options.Serve.RPC)
	if err != nil {
		return err
	}

	engine, err := payout.New(node, storeDriver, payout.Config{
		Beneficiary: options.Serve.Beneficiary,
		PoolWallet:  options.Serve.PoolWallet,
		From:        options.Serve.From,
		FeePercent:  options.Serve.Fee,
		Threshold:   payout.Ether(options.Serve.Threshold),
		BaseReward:  payout.Ether(options.Serve.BaseReward),
		Metrics:     metrics.New(),
	})
	if err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return ErrExplain{err, "Failed to sample the network gas price. Is the node's eth API enabled?"}
	}
	if coinbase, err := node.Coinbase(ctx); err == nil {
		if balance, err := node.Balance(ctx, coinbase); err == nil {
			logger.Infof("Funding account %s holds %f ether", coinbase.Hex(), payout.EtherValue(balance))
		}
	}

	shares := make(chan payout.Share, 64)
	handler := &server{
		engine: engine,
		shares: shares,
		header: http.Header{},
	}
	if options.Serve.AllowOrigin != "" {
		handler.header.Set("Access-Control-Allow-Origin", options.Serve.AllowOrigin)
	}

	// Register cancel() on ctrl+c signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		for range sigCh {
			logger.Info("Shutting down...")
			cancel()
		}
	}()

	httpServer := &http.Server{
		Addr:    options.Serve.Bind,
		Handler: handler,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(ctx, shares)
	})
	g.Go(func() error {
		<-ctx.Done()
		return httpServer.Close()
	})
	g.Go(func() error {
		if options.Serve.TLSHost != "" {
			if !strings.HasSuffix(options.Serve.Bind, ":443") {
				logger.Warningf("Ignoring --bind value (%q) because it's not 443 and --tlshost is set.", options.Serve.Bind)
			}
			logger.Infof("Starting daemon (version %s), acquiring ACME certificate and listening on: https://%s", Version, options.Serve.TLSHost)
			return httpServer.Serve(autocert.NewListener(options.Serve.TLSHost))
		}
		logger.Infof("Starting daemon (version %s), listening on: %s", Version, options.Serve.Bind)
		return httpServer.ListenAndServe()
	})

	err = g.Wait()
	if err == http.ErrServerClosed || err == context.Canceled {
		return nil
	}
	return err
}
