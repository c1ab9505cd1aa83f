package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/minepay/minepay/payout"
	"github.com/minepay/minepay/payout/store"
)

var httpClient = &http.Client{Timeout: rpcTimeout}

func daemonURL(server, path string) string {
	return strings.TrimSuffix(server, "/") + path
}

func decodeResponse(resp *http.Response, into interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("daemon error: %s", errResp.Error)
		}
		return fmt.Errorf("daemon error: %s", resp.Status)
	}
	if into == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func runStatus(options Options) error {
	resp, err := httpClient.Get(daemonURL(options.Status.Server, "/v1/balance"))
	if err != nil {
		return ErrExplain{err, "Failed to reach the daemon. Is it running? You can specify its URL with --server."}
	}
	var status store.BalanceStatus
	if err := decodeResponse(resp, &status); err != nil {
		return err
	}

	ready := "no"
	if status.Ready {
		ready = "yes"
	}
	fmt.Printf("Pending balance: %f ether (minimum for payout: %f, ready: %s)\n",
		payout.EtherValue(status.Amount), payout.EtherValue(status.Minimum), ready)
	return nil
}

func runPayout(options Options) error {
	resp, err := httpClient.Post(daemonURL(options.Payout.Server, "/v1/payouts"), "application/json", nil)
	if err != nil {
		return ErrExplain{err, "Failed to reach the daemon. Is it running? You can specify its URL with --server."}
	}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		fmt.Println("Nothing to pay out: pending balance is below the minimum.")
		return nil
	}
	var record store.PayoutRecord
	if err := decodeResponse(resp, &record); err != nil {
		return err
	}
	fmt.Printf("Paid out %f ether to %s (fee: %f ether): %s\n",
		payout.EtherValue(record.Amount), record.Recipient.Hex(), payout.EtherValue(record.Fee), record.TxHash.Hex())
	return nil
}
