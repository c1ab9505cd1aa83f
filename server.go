package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/minepay/minepay/payout"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// server exposes the engine's control surface: balance and history queries, a
// manual payout trigger, and the share intake for the mining engine.
type server struct {
	engine *payout.Engine
	shares chan<- payout.Share
	header http.Header

	upgrader websocket.Upgrader
}

type errorResponse struct {
	Error string `json:"error"`
}

type shareAck struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("failed to write response: %s", err)
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for k, values := range s.header {
		for _, v := range values {
			w.Header().Set(k, v)
		}
	}

	switch {
	case r.URL.Path == "/v1/balance" && r.Method == http.MethodGet:
		s.serveBalance(w, r)
	case r.URL.Path == "/v1/payouts" && r.Method == http.MethodGet:
		s.serveHistory(w, r)
	case r.URL.Path == "/v1/payouts" && r.Method == http.MethodPost:
		s.triggerPayout(w, r)
	case r.URL.Path == "/v1/shares" && r.Method == http.MethodPost:
		s.acceptShare(w, r)
	case r.URL.Path == "/v1/shares" && websocket.IsWebSocketUpgrade(r):
		s.streamShares(w, r)
	case r.URL.Path == "/metrics" && r.Method == http.MethodGet:
		promhttp.Handler().ServeHTTP(w, r)
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{"not found"})
	}
}

func (s *server) serveBalance(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.PendingBalance()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) serveHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.engine.PayoutHistory()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *server) triggerPayout(w http.ResponseWriter, r *http.Request) {
	record, err := s.engine.PayoutIfReady(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if _, ok := err.(payout.SubmissionError); ok {
			// The reserved balance was restored; the trigger can be retried.
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorResponse{err.Error()})
		return
	}
	if record == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *server) acceptShare(w http.ResponseWriter, r *http.Request) {
	var share payout.Share
	if err := json.NewDecoder(r.Body).Decode(&share); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	reward, err := s.engine.AccrueShare(r.Context(), share)
	if err != nil {
		status := http.StatusInternalServerError
		if _, ok := err.(payout.ValidationError); ok {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// streamShares upgrades to a websocket over which the mining engine pushes
// accepted shares as JSON frames. Shares are queued onto the engine's feed;
// accrual (and any triggered payout) happens on the feed consumer.
func (s *server) streamShares(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debugf("websocket upgrade error from %s: %s", r.RemoteAddr, err)
		return
	}
	defer conn.Close()
	logger.Infof("Share feed connected: %s", r.RemoteAddr)

	for {
		var share payout.Share
		if err := conn.ReadJSON(&share); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warningf("Share feed error from %s: %s", r.RemoteAddr, err)
			}
			return
		}
		ack := shareAck{Accepted: true}
		if share.Difficulty <= 0 {
			ack = shareAck{Error: "missing difficulty"}
		} else {
			s.shares <- share
		}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
	}
}
