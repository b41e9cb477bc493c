package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"momentsstudio/pkg/store"
)

// Config identifies one Supabase project.
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
}

// Client talks to a Supabase project's auth (GoTrue) and data (PostgREST)
// endpoints. It is safe for concurrent use.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// APIError is a non-success response from either endpoint.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: status %d: %s", e.Status, e.Message)
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("supabase: url is required")
	}
	if strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, errors.New("supabase: anon key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: base, anonKey: cfg.AnonKey, httpClient: httpClient}, nil
}

// ForSession returns a metadata store whose requests run as the holder
// of accessToken. An empty token runs as the anonymous role.
func (c *Client) ForSession(accessToken string) store.Store {
	if accessToken == "" {
		accessToken = c.anonKey
	}
	return &Session{client: c, accessToken: accessToken}
}

type request struct {
	method      string
	path        string
	query       string
	accessToken string
	body        any
	headers     map[string]string
}

func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	endpoint := c.baseURL + r.path
	if r.query != "" {
		endpoint += "?" + r.query
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+r.accessToken)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, decodeAPIError(resp, raw)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeAPIError understands both PostgREST ({code, message, details})
// and GoTrue ({error_code, msg} or {error, error_description}) bodies.
func decodeAPIError(resp *http.Response, raw []byte) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		// GoTrue sends a numeric code alongside error_code.
		if code, ok := payload.Code.(string); ok {
			apiErr.Code = code
		}
		if apiErr.Code == "" {
			apiErr.Code = payload.ErrorCode
		}
		for _, msg := range []string{payload.Message, payload.Msg, payload.ErrorDescription, payload.Error} {
			if strings.TrimSpace(msg) != "" {
				apiErr.Message = strings.TrimSpace(msg)
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
