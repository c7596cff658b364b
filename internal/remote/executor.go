package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxDrainBytes bounds how much of a rejected response is read before the
// connection is released.
const maxDrainBytes = 64 << 10

// Request describes one call to the remote service.
type Request struct {
	// Operation labels logs and metrics, e.g. "create_issue".
	Operation     string
	Method        string
	URL           string
	Authorization string
	Body          io.Reader
	ContentType   string
	Header        http.Header
}

// Executor performs remote calls and normalizes their failures.
type Executor struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

// NewExecutor creates an Executor. metrics may be nil.
func NewExecutor(httpClient *http.Client, logger *slog.Logger, metrics *Metrics) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Executor{
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}
}

// HTTPClient returns the underlying transport client.
func (e *Executor) HTTPClient() *http.Client {
	return e.httpClient
}

// JSONBody encodes v for use as a Request body.
func JSONBody(v any) (io.Reader, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return bytes.NewReader(body), nil
}

// Do sends req and decodes a successful JSON response into out. out may be
// nil when the response body is not needed. A non-2xx status yields
// KindRemoteRejected with the body discarded; transport and decode failures
// yield KindTransport.
func (e *Executor) Do(ctx context.Context, req Request, out any) error {
	resp, err := e.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		e.logger.Error("failed to decode remote response",
			"operation", req.Operation,
			"status_code", resp.StatusCode,
			"error", err,
		)
		return NewError(KindTransport, req.Operation, err)
	}

	return nil
}

// Stream sends req and returns the successful response for the caller to
// read and close. Failures are normalized as in Do.
func (e *Executor) Stream(ctx context.Context, req Request) (*http.Response, error) {
	return e.send(ctx, req)
}

func (e *Executor) send(ctx context.Context, req Request) (*http.Response, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		e.metrics.observe(req.Operation, KindTransport.String(), time.Since(start))
		return nil, NewError(KindTransport, req.Operation, fmt.Errorf("failed to create request: %w", err))
	}

	e.setHeaders(httpReq, req)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.logger.Error("remote request failed",
			"operation", req.Operation,
			"method", req.Method,
			"error", err,
		)
		e.metrics.observe(req.Operation, KindTransport.String(), time.Since(start))
		return nil, NewError(KindTransport, req.Operation, err)
	}

	if err := e.checkResponse(ctx, req, resp); err != nil {
		resp.Body.Close()
		e.metrics.observe(req.Operation, KindRemoteRejected.String(), time.Since(start))
		return nil, err
	}

	e.logger.Debug("remote request completed",
		"operation", req.Operation,
		"method", req.Method,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	e.metrics.observe(req.Operation, "success", time.Since(start))

	return resp, nil
}

// setHeaders sets common headers for remote API requests.
func (e *Executor) setHeaders(httpReq *http.Request, req Request) {
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Authorization)
	}
}

// checkResponse rejects non-2xx responses. The body may contain remote-side
// detail and is drained without being logged or returned.
func (e *Executor) checkResponse(ctx context.Context, req Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	level := slog.LevelWarn
	if IsServerError(resp.StatusCode) {
		level = slog.LevelError
	}
	e.logger.Log(ctx, level, "remote API rejected request",
		"operation", req.Operation,
		"method", req.Method,
		"status_code", resp.StatusCode,
		"response_bytes", n,
	)

	return &Error{
		Kind:       KindRemoteRejected,
		Op:         req.Operation,
		StatusCode: resp.StatusCode,
	}
}
