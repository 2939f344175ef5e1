package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/loopback/pkg/loopback"
)

// closeNotifier is implemented by endpoints that report the end of their
// client connection.
type closeNotifier interface {
	OnClose(func())
}

// answer is the /offer response. Call identifies an interactive call for
// /hangup and is empty for registered endpoints.
type answer struct {
	webrtc.SessionDescription
	Call string `json:"call,omitempty"`
}

// offerHandler answers browser offers.
//
// With ?endpoint=<id> the offer goes to an existing endpoint. Without it,
// an interactive call gets its own pipeline with a loopback endpoint. That
// pipeline is released on /hangup, when the call's connection ends, or on
// shutdown.
type offerHandler struct {
	backend Backend
	log     logging.LeveledLogger

	mu       sync.Mutex
	sessions map[string]loopback.Pipeline
}

func (h *offerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse incoming offer
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		h.log.Warnf("failed to decode offer: %v", err)
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	var (
		ep   loopback.Endpoint
		call string
	)
	if id := r.URL.Query().Get("endpoint"); id != "" {
		found, ok := h.backend.Endpoint(id)
		if !ok {
			http.Error(w, "Unknown endpoint", http.StatusNotFound)
			return
		}
		ep = found
	} else {
		created, id, err := h.newLoopback(r)
		if err != nil {
			h.log.Errorf("failed to create loopback: %v", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		ep, call = created, id
	}

	sdp, err := ep.ProcessOffer(r.Context(), offer.SDP)
	if err != nil {
		h.log.Warnf("endpoint %s rejected offer: %v", ep.ID(), err)
		if call != "" {
			h.hangUp(call)
		}
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	// Send answer with complete ICE candidates
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer{
		SessionDescription: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp},
		Call:               call,
	})

	h.log.Infof("answered offer for endpoint %s", ep.ID())
}

// newLoopback creates a pipeline with one endpoint connected to itself and
// returns the endpoint with its call id.
func (h *offerHandler) newLoopback(r *http.Request) (loopback.Endpoint, string, error) {
	p, err := h.backend.NewPipeline(r.Context())
	if err != nil {
		return nil, "", err
	}
	ep, err := p.NewEndpoint(r.Context(), loopback.EndpointWebRTC)
	if err == nil {
		err = ep.Connect(ep)
	}
	if err != nil {
		return nil, "", errors.Join(err, p.Release())
	}

	call := p.ID()
	h.mu.Lock()
	h.sessions[call] = p
	h.mu.Unlock()

	if n, ok := ep.(closeNotifier); ok {
		n.OnClose(func() { h.hangUp(call) })
	}
	return ep, call, nil
}

// serveHangUp ends the interactive call named by ?call=<id>.
func (h *offerHandler) serveHangUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.hangUp(r.URL.Query().Get("call")) {
		http.Error(w, "Unknown call", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// hangUp releases the pipeline of call. It reports whether the call was
// live. The pipeline is released outside the lock since releasing closes
// the endpoint, which calls back into hangUp.
func (h *offerHandler) hangUp(call string) bool {
	h.mu.Lock()
	p, ok := h.sessions[call]
	delete(h.sessions, call)
	h.mu.Unlock()
	if !ok {
		return false
	}

	if err := p.Release(); err != nil {
		h.log.Warnf("pipeline %s release failed: %v", call, err)
	}
	h.log.Infof("call %s ended", call)
	return true
}

func (h *offerHandler) releaseAll() error {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]loopback.Pipeline)
	h.mu.Unlock()

	var errs []error
	for id, p := range sessions {
		if err := p.Release(); err != nil {
			errs = append(errs, fmt.Errorf("pipeline %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
