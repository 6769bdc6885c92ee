// Package erp is a client for the ERP's OData REST API: the form prefix
// catalog, document lookup and attachment uploads.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound     = errors.New("not found in ERP")
	ErrUnauthorized = errors.New("ERP authentication failed")
)

// StatusError is a non-2xx ERP response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ERP returned %d", e.StatusCode)
	}
	return fmt.Sprintf("ERP returned %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// Config holds ERP connection settings.
type Config struct {
	BaseURL   string
	TabulaIni string // default tabula.ini
	Company   string
	Username  string
	Password  string
	AppID     string
	AppKey    string
	SourceID  string // MAILFROM value on export uploads
	Timeout   time.Duration
}

// Client talks to one ERP company.
type Client struct {
	httpClient *http.Client
	root       string
	cfg        Config
	log        zerolog.Logger

	mu   sync.Mutex
	meta map[string]*FormMetadata
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ERP base URL is required")
	}
	if cfg.Company == "" {
		return nil, fmt.Errorf("ERP company is required")
	}
	if cfg.TabulaIni == "" {
		cfg.TabulaIni = "tabula.ini"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "FileSmile"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		root:       strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.TabulaIni + "/" + cfg.Company + "/",
		cfg:        cfg,
		log:        log,
		meta:       make(map[string]*FormMetadata),
	}, nil
}

// query is an OData query string.
type query struct {
	Select  []string
	Filter  string
	Expand  []string
	OrderBy string
	Top     int
}

func escapeValue(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func (q query) encode() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+escapeValue(v))
		}
	}
	add("$select", strings.Join(q.Select, ","))
	add("$filter", q.Filter)
	add("$expand", strings.Join(q.Expand, ","))
	add("$orderby", q.OrderBy)
	if q.Top > 0 {
		add("$top", strconv.Itoa(q.Top))
	}
	if len(parts) == 0 {
		return ""
	}
	return "?" + strings.Join(parts, "&")
}

// quote renders an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type record map[string]any

// list runs a GET on a form and returns the records in its value array.
func (c *Client) list(ctx context.Context, form string, q query) ([]record, error) {
	var out struct {
		Value []record `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, form+q.encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.root+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json;odata.metadata=none")
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AppID != "" {
		req.Header.Set("X-App-Id", c.cfg.AppID)
		req.Header.Set("X-App-Key", c.cfg.AppKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).Msg("erp request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the message of an OData error body, falling back to
// the raw text.
func errorMessage(body []byte) string {
	var odata struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &odata); err == nil && odata.Error.Message != "" {
		return odata.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}

// Ping checks connectivity and credentials with a cheap query.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.list(ctx, "LOGPART", query{Select: []string{"PARTNAME"}, Top: 1})
	return err
}

// str renders a record field as text; numbers keep their JSON form.
func (r record) str(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
