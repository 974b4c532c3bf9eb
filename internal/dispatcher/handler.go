package dispatcher

import (
	"errors"
	"fmt"

	"RelayClient/internal/dispatch"
	"RelayClient/internal/logger"
	"RelayClient/internal/metrics"
)

// HeightFunc reports the current block height.
type HeightFunc func() uint64

// Handler turns encoded dispatch requests into encoded responses.
type Handler struct {
	assigner *Assigner        // assigner derives sessions
	height   HeightFunc       // height reports the chain tip
	metrics  *metrics.Metrics // metrics may be nil
}

// NewHandler creates a handler.
func NewHandler(assigner *Assigner, height HeightFunc, m *metrics.Metrics) *Handler {
	return &Handler{assigner: assigner, height: height, metrics: m}
}

// Handle answers one raw request. It always returns a response; failures are
// reported through the response status.
func (h *Handler) Handle(raw []byte) []byte {
	resp := h.serve(raw)

	h.metrics.ObserveDispatcherRequest(resp.Status.String())

	if resp.Status != dispatch.StatusOK {
		logger.Debug("dispatch rejected", "status", resp.Status, "message", resp.Message)
	}

	return dispatch.EncodeResponse(resp)
}

// serve validates the request and assigns a session.
func (h *Handler) serve(raw []byte) dispatch.Response {
	req, err := dispatch.DecodeRequest(raw)
	if err != nil {
		return reject(dispatch.StatusInvalidRequest, err.Error())
	}

	if len(req.AppPublicKey) == 0 {
		return reject(dispatch.StatusInvalidRequest, "missing app public key")
	}

	if req.Chain == "" {
		return reject(dispatch.StatusInvalidRequest, "missing chain")
	}

	tip := h.height()

	height := req.SessionHeight
	if height == 0 {
		height = tip
	}

	if height > tip {
		return reject(dispatch.StatusInvalidRequest, fmt.Sprintf("height %d is ahead of tip %d", height, tip))
	}

	s, err := h.assigner.Assign(req.AppPublicKey, req.Chain, height)
	if errors.Is(err, ErrNoEligibleNodes) {
		return reject(dispatch.StatusNoNodes, fmt.Sprintf("no nodes serve chain %s", req.Chain))
	}
	if err != nil {
		return reject(dispatch.StatusInternal, err.Error())
	}

	return dispatch.Response{Status: dispatch.StatusOK, Session: s}
}

// reject builds a failed response.
func reject(status dispatch.Status, message string) dispatch.Response {
	return dispatch.Response{Status: status, Message: message}
}
