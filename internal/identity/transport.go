package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prediction-platform/internal/logger"

	"go.uber.org/zap"
)

const (
	DefaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
	maxErrorBody    = 64 << 10
)

// ErrorDecoder turns a non-2xx response body into a normalized error.
type ErrorDecoder func(status int, body []byte) *Error

// Request describes one outbound call relative to Transport.BaseURL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Transport is the JSON-over-HTTP client shared by the providers. Each call
// is bounded by the client timeout, and GET requests that fail at the network
// level or with a 5xx are retried once.
type Transport struct {
	BaseURL     string
	client      *http.Client
	decodeError ErrorDecoder
	log         *zap.Logger
}

func NewTransport(baseURL string, timeout time.Duration, decode ErrorDecoder) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transport{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		decodeError: decode,
		log:         logger.Named("identity"),
	}
}

// SetHTTPClient replaces the underlying client, keeping its timeout as is.
func (t *Transport) SetHTTPClient(c *http.Client) {
	t.client = c
}

// Do sends req and decodes a successful JSON response into out when out is
// not nil.
func (t *Transport) Do(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return &Error{Code: CodeValidation, Message: "Failed to encode request", Err: err}
		}
		payload = b
	}

	attempts := 1
	if req.Method == http.MethodGet {
		attempts = 2
	}

	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, body, err := t.send(ctx, req, payload)
		if err != nil {
			lastErr = AsError(err)
			if ctx.Err() != nil {
				return lastErr
			}
		} else if status >= 200 && status < 300 {
			return decodeBody(body, out)
		} else {
			lastErr = t.decode(status, body)
			if status < http.StatusInternalServerError {
				return lastErr
			}
		}

		if attempt < attempts {
			t.log.Debug("Retrying request",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.String("error", lastErr.Message),
			)
		}
	}
	return lastErr
}

func (t *Transport) send(ctx context.Context, req Request, payload []byte) (int, []byte, error) {
	target := t.BaseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func (t *Transport) decode(status int, body []byte) *Error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	if t.decodeError != nil {
		if e := t.decodeError(status, body); e != nil {
			return e
		}
	}
	return &Error{Status: status, Code: strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")), Message: http.StatusText(status)}
}

func decodeBody(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Code: CodeInvalidResponse, Message: "Invalid response from server", Err: err}
	}
	return nil
}

// BearerHeader returns an Authorization header for token.
func BearerHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// IsNetwork reports whether err is a failure to reach the server at all.
func IsNetwork(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Status == 0 && (e.Code == CodeNetwork || e.Code == CodeTimeout)
}
