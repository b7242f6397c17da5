// Package handler exposes chain dispatch over HTTP.
//
// POST /run takes a tagged JSON object, runs the chain registered for its tag
// and answers with the final accumulator. GET /chains lists the registered
// tags and, when metrics are configured, GET /metrics serves them.
package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/bcap/stepper/chain"
	"github.com/bcap/stepper/metrics"
	"github.com/bcap/stepper/runner"
)

// MaxBodySize bounds the request body of POST /run
const MaxBodySize = 1 << 20

type Handler struct {
	dispatcher *runner.Dispatcher
	metrics    *metrics.Metrics
	mux        *http.ServeMux

	// access log capturing is for unit testing only
	testCaptureAccessLog bool
	testAccessLog        []string
	testAccessLogMutex   sync.Mutex
}

type Option func(*Handler)

// WithMetrics serves m at GET /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func New(dispatcher *runner.Dispatcher, opts ...Option) *Handler {
	h := &Handler{dispatcher: dispatcher, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}
	h.mux.HandleFunc("POST /run", h.serveRun)
	h.mux.HandleFunc("GET /chains", h.serveChains)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics.Handler())
	}
	return h
}

func (h *Handler) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	h.mux.ServeHTTP(resp, req)
}

func (h *Handler) serveRun(resp http.ResponseWriter, req *http.Request) {
	handler := handler{Handler: h, Request: req, Response: resp}
	handler.Handle()
}

func (h *Handler) serveChains(resp http.ResponseWriter, req *http.Request) {
	type chainInfo struct {
		Tag   string   `json:"tag"`
		Steps []string `json:"steps"`
	}
	chains := []chainInfo{}
	for _, tag := range h.dispatcher.Tags() {
		c, _ := h.dispatcher.Chain(tag)
		chains = append(chains, chainInfo{Tag: tag, Steps: c.Keys()})
	}
	resp.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(resp).Encode(chains); err != nil {
		log.Printf("failed to send chain listing to %s: %v", req.RemoteAddr, err)
	}
}

// handler holds the state of a single POST /run request
type handler struct {
	*Handler

	Request     *http.Request
	RequestBody []byte
	RunID       string

	Response           http.ResponseWriter
	ResponseStatusCode int
	ResponseBody       []byte

	Start time.Time
}

// errorResponse is the body of every non 200 answer
type errorResponse struct {
	Error string `json:"error"`
	RunID string `json:"run_id,omitempty"`
}

func (h *handler) jsonResponse(statusCode int, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		h.errorResponse(http.StatusInternalServerError, "cannot encode result: %v", err)
		return
	}
	h.respond(statusCode, append(body, '\n'))
}

func (h *handler) errorResponse(statusCode int, msg string, args ...any) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	body, _ := json.Marshal(errorResponse{Error: msg, RunID: h.RunID})
	h.respond(statusCode, append(body, '\n'))
}

func (h *handler) respond(statusCode int, body []byte) {
	h.Response.Header().Set("Content-Type", "application/json")
	h.Response.WriteHeader(statusCode)
	h.ResponseStatusCode = statusCode
	h.ResponseBody = body
	if _, err := h.Response.Write(body); err != nil {
		h.logResponseWriteErr(err)
	}
}

// decodeInput reads a JSON object into an accumulator
func decodeInput(data []byte) (chain.Accumulator, error) {
	var input chain.Accumulator
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	if input == nil {
		return nil, fmt.Errorf("input must be a JSON object")
	}
	return input, nil
}
