package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bcap/stepper/chain"
)

// HeaderRunID carries the run id of a POST /run request. When a request does
// not set it the handler generates one. Either way it is echoed back in the
// response
const HeaderRunID = "X-Stepper-Run-Id"

func WriteRunIDHeader(header http.Header, runID string) {
	header.Set(HeaderRunID, runID)
}

func ReadRunIDHeader(req *http.Request) string {
	return req.Header.Get(HeaderRunID)
}

// RemoteError is a non 200 answer of a remote POST /run
type RemoteError struct {
	StatusCode int
	RunID      string
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("run %s failed with status %d: %s", e.RunID, e.StatusCode, e.Message)
}

// Run posts input to the /run endpoint under baseURL and returns the resulting
// accumulator along with the run id the server used
func Run(ctx context.Context, client *http.Client, baseURL string, input chain.Accumulator, runID string) (chain.Accumulator, string, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, "", fmt.Errorf("cannot encode input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if runID != "" {
		WriteRunIDHeader(req.Header, runID)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	runID = resp.Header.Get(HeaderRunID)
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, runID, fmt.Errorf("cannot read response of run %s: %w", runID, err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Error == "" {
			errResp.Error = string(respBody)
		}
		return nil, runID, &RemoteError{StatusCode: resp.StatusCode, RunID: runID, Message: errResp.Error}
	}
	result, err := decodeInput(respBody)
	if err != nil {
		return nil, runID, fmt.Errorf("cannot decode result of run %s: %w", runID, err)
	}
	return result, runID, nil
}
