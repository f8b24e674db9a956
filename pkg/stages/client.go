// Package stages holds the HTTP clients for the three remote pipeline
// stages: speech-to-text, chat and text-to-speech.
package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
)

const DefaultBaseURL = "http://127.0.0.1:8000"

// Stage names one remote pipeline operation.
type Stage string

const (
	StageSTT  Stage = "stt"
	StageChat Stage = "chat"
	StageTTS  Stage = "tts"
)

// Reason returns the errorsx reason used for transport failures of the stage.
func (s Stage) Reason() errorsx.ReasonCode {
	switch s {
	case StageSTT:
		return errorsx.ReasonSTTTransport
	case StageChat:
		return errorsx.ReasonChatTransport
	case StageTTS:
		return errorsx.ReasonTTSTransport
	default:
		return errorsx.ReasonUnknown
	}
}

// TransportError is the only error kind stage clients return: a network
// failure, a non-2xx status or an unreadable success body.
type TransportError struct {
	Stage      Stage
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	b.WriteString(" request failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err carries a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Options configure the shared HTTP plumbing of every stage client.
type Options struct {
	BaseURL string
	// Timeout of zero leaves requests unbounded.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NormalizeBaseURL trims whitespace and a single trailing slash, falling
// back to DefaultBaseURL when empty.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL
	}
	return strings.TrimSuffix(raw, "/")
}

type base struct {
	baseURL string
	client  *http.Client
}

func newBase(opts Options) base {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return base{baseURL: NormalizeBaseURL(opts.BaseURL), client: client}
}

func (b base) endpoint(path string) string {
	return b.baseURL + path
}

func (b base) postJSON(ctx context.Context, stage Stage, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, b.fail(stage, 0, "", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, b.fail(stage, 0, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(stage, req)
}

// do sends req and converts network errors and non-2xx statuses.
func (b base) do(stage Stage, req *http.Request) (*http.Response, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, b.fail(stage, 0, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, b.fail(stage, resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}
	return resp, nil
}

func (b base) decodeJSON(stage Stage, resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return b.fail(stage, resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (b base) fail(stage Stage, status int, body string, err error) error {
	return errorsx.Wrap(&TransportError{Stage: stage, StatusCode: status, Body: body, Err: err}, stage.Reason())
}
