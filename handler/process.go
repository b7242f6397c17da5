package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bcap/stepper/chain"
	"github.com/bcap/stepper/runner"
)

func (h *handler) Handle() {
	h.Start = time.Now()

	h.RunID = ReadRunIDHeader(h.Request)
	if h.RunID == "" {
		h.RunID = runner.NewRunID()
	}
	WriteRunIDHeader(h.Response.Header(), h.RunID)

	reqBodyBytes, err := io.ReadAll(http.MaxBytesReader(h.Response, h.Request.Body, MaxBodySize))
	h.RequestBody = reqBodyBytes
	h.logRequestIn()
	defer h.logResponseOut()
	if err != nil {
		h.errorResponse(http.StatusBadRequest, "bad request: %v", err)
		return
	}

	input, err := decodeInput(reqBodyBytes)
	if err != nil {
		h.errorResponse(http.StatusBadRequest, "bad input: %v", err)
		return
	}

	ctx := runner.ContextWithRunID(h.Request.Context(), h.RunID)
	result, err := h.dispatcher.RunByTag(ctx, input)
	if err != nil {
		h.errorResponse(StatusCode(err), "%v", err)
		return
	}
	h.jsonResponse(http.StatusOK, result)
}

// StatusCode maps a run failure to the HTTP status answered for it:
//
//	no chain for the input tag      404
//	other configuration errors      500
//	run canceled or timed out       503
//	capability failures             502
func StatusCode(err error) int {
	switch {
	case errors.Is(err, chain.ErrNoChainForTag):
		return http.StatusNotFound
	case chain.IsConfigError(err):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
