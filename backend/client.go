package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"ecochat/log"
)

const (
	chatPath       = "/chat/"
	categoryPath   = "/select_category/"
	transcribePath = "/transcribe-openai/"
	healthPath     = "/health/"
	endPath        = "/end_session/"
	clearLogsPath  = "/clear_logs/"
)

// APIError is a non-2xx answer from the backend. Detail carries the
// {"detail": ...} field when the server sent one, else the raw body.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend error %d", e.StatusCode)
	}
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Detail)
}

// Upload is one audio file for the transcription endpoint.
type Upload struct {
	FileName string
	MIME     string
	Data     io.Reader
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *TracedClient
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = NewTracedClient(c.timeout)
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Chat sends one user turn and returns the bot reply.
func (c *Client) Chat(ctx context.Context, input string) (string, error) {
	var out struct {
		Response  string `json:"response"`
		Timestamp string `json:"timestamp"`
	}
	if err := c.doJSON(ctx, http.MethodPost, chatPath, map[string]string{"user_input": input}, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// SelectCategory tells the backend which data set to answer from.
func (c *Client) SelectCategory(ctx context.Context, category string) error {
	return c.doJSON(ctx, http.MethodPost, categoryPath, map[string]string{"category": category}, nil)
}

// Transcribe uploads audio as the multipart field "file". A response
// without a transcription yields "" and no error.
func (c *Client) Transcribe(ctx context.Context, up Upload) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.FileName))
	h.Set("Content-Type", up.MIME)
	part, err := writer.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, up.Data); err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, transcribePath, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req, transcribePath)
	if err != nil {
		return "", err
	}

	var out struct {
		Transcription *string `json:"transcription"`
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("transcription response parse error: %w", err)
	}
	if out.Transcription == nil {
		return "", nil
	}
	return *out.Transcription, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, healthPath, nil, nil)
}

// EndSession drops the server-side conversation state.
func (c *Client) EndSession(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, endPath, nil, nil)
}

func (c *Client) ClearLogs(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, clearLogsPath, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req, path)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s response parse error: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, path string) (*TracedResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		log.Errorf("%s %s: %v", req.Method, path, err)
		return nil, err
	}

	m := resp.Metrics
	log.Request(log.RequestMetrics{
		Endpoint:   path,
		Status:     resp.StatusCode,
		DNSMs:      ms(m.DNS),
		TCPMs:      ms(m.TCP),
		TLSMs:      ms(m.TLS),
		TTFBMs:     ms(m.TTFB),
		TotalMs:    ms(m.Total),
		ConnReused: m.ConnReused,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detail(resp.Body)}
	}
	return resp, nil
}

// detail pulls the message out of a FastAPI error body. Validation errors
// carry a list under "detail", which is returned as raw JSON.
func detail(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil && len(e.Detail) > 0 {
		var s string
		if json.Unmarshal(e.Detail, &s) == nil {
			return s
		}
		return string(e.Detail)
	}
	return strings.TrimSpace(string(body))
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
