// Package httptransport delivers form payloads to the booking portal backend
// over HTTP. Endpoints, content types and credentials come from the embedded
// OpenAPI document; the auth token and UI language come from a client state
// store handed in by the caller.
package httptransport

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-formengine/internal/apicatalog"
	"github.com/goliatone/go-formengine/pkg/clientstate"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/submission"
)

//go:embed api.yaml
var apiDocument []byte

const (
	opSubmitForm = "submitForm"
	opRegister   = "register"
	opLogin      = "login"
	opProfile    = "profile"

	maxErrorBody = 64 << 10
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the first server of the OpenAPI document.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(base); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithAPIKey sets the fixed API credential sent on every request whose
// operation declares an apiKey scheme.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithAPIKeyHeader overrides the header named by the OpenAPI apiKey scheme.
func WithAPIKeyHeader(header string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(header); trimmed != "" {
			c.apiKeyHeader = textproto.CanonicalMIMEHeaderKey(trimmed)
		}
	}
}

// WithStateStore sets where the auth token and language are read from and
// where Login stores the token.
func WithStateStore(store clientstate.Store) Option {
	return func(c *Client) {
		if store != nil {
			c.store = store
		}
	}
}

// WithTimeout bounds each request. Zero leaves requests unbounded.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout >= 0 {
			c.timeout = timeout
		}
	}
}

// WithCatalog replaces the embedded endpoint catalogue.
func WithCatalog(catalog *apicatalog.Catalog) Option {
	return func(c *Client) {
		if catalog != nil {
			c.catalog = catalog
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client implements submission.Transport.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	apiKeyHeader string
	store        clientstate.Store
	catalog      *apicatalog.Catalog
	timeout      time.Duration
	logger       *slog.Logger
}

var _ submission.Transport = (*Client)(nil)

// New builds a client. The embedded OpenAPI document is parsed unless
// WithCatalog supplies one.
func New(ctx context.Context, options ...Option) (*Client, error) {
	c := &Client{
		httpClient: http.DefaultClient,
		store:      clientstate.NewMemoryStore(clientstate.Default()),
		logger:     slog.Default().WithGroup("httptransport"),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	if c.catalog == nil {
		catalog, err := apicatalog.Load(ctx, apiDocument)
		if err != nil {
			return nil, fmt.Errorf("httptransport: %w", err)
		}
		c.catalog = catalog
	}
	if c.baseURL == "" {
		if len(c.catalog.Servers) == 0 {
			return nil, errors.New("httptransport: base URL is required")
		}
		c.baseURL = strings.TrimRight(c.catalog.Servers[0], "/")
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, fmt.Errorf("httptransport: invalid base URL %q: %w", c.baseURL, err)
	}
	return c, nil
}

// SubmitForm posts payload as multipart/form-data. Signup payloads go to the
// registration endpoint; every other form to its submissions collection.
// Failures are returned as *submission.TransportError.
func (c *Client) SubmitForm(ctx context.Context, payload submission.Payload) (submission.Receipt, error) {
	opID := opSubmitForm
	if payload.Kind == model.FormKindSignup {
		opID = opRegister
	}

	ctx, span := tracer.Start(ctx, "Client.SubmitForm", trace.WithAttributes(
		attribute.String("form.kind", string(payload.Kind)),
		attribute.String("submission.id", payload.SubmissionID.String()),
		attribute.String("operation", opID),
	))
	defer span.End()

	body, contentType, err := encodeMultipart(payload.Fields, payload.Attachments)
	if err != nil {
		return submission.Receipt{}, c.fail(span, opID, err)
	}

	status, raw, err := c.do(ctx, opID, map[string]string{"kind": string(payload.Kind)}, body, contentType)
	if err != nil {
		return submission.Receipt{}, c.fail(span, opID, err)
	}

	var decoded struct {
		Reference string `json:"reference"`
		Message   string `json:"message"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			c.logger.WarnContext(ctx, "receipt body is not JSON", "operation", opID, "error", err)
		}
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	return submission.Receipt{Status: status, Reference: decoded.Reference, Message: decoded.Message}, nil
}

// Login exchanges credentials for an auth token and stores it in client
// state.
func (c *Client) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "Client.Login")
	defer span.End()

	body, contentType, err := encodeMultipart(map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	}, nil)
	if err != nil {
		return c.fail(span, opLogin, err)
	}
	_, raw, err := c.do(ctx, opLogin, nil, body, contentType)
	if err != nil {
		return c.fail(span, opLogin, err)
	}

	var decoded struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || strings.TrimSpace(decoded.Token) == "" {
		return c.fail(span, opLogin, errors.New("httptransport: login response carries no token"))
	}
	if err := clientstate.SetAuthToken(ctx, c.store, decoded.Token); err != nil {
		span.RecordError(err)
		return fmt.Errorf("httptransport: store auth token: %w", err)
	}
	c.logger.InfoContext(ctx, "signed in")
	return nil
}

// Logout forgets the stored auth token.
func (c *Client) Logout(ctx context.Context) error {
	return clientstate.SetAuthToken(ctx, c.store, "")
}

// Profile is the signed-in account.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	AccountType string `json:"accountType"`
	DisplayName string `json:"displayName"`
}

// Profile fetches the signed-in account. It fails with ErrUnauthenticated
// when no token is stored.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	ctx, span := tracer.Start(ctx, "Client.Profile")
	defer span.End()

	_, raw, err := c.do(ctx, opProfile, nil, nil, "")
	if err != nil {
		return Profile{}, c.fail(span, opProfile, err)
	}
	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return Profile{}, c.fail(span, opProfile, fmt.Errorf("httptransport: decode profile: %w", err))
	}
	return profile, nil
}

func (c *Client) do(ctx context.Context, opID string, params map[string]string, body []byte, contentType string) (int, []byte, error) {
	endpoint, err := c.catalog.Endpoint(opID)
	if err != nil {
		return 0, nil, err
	}
	escaped := make(map[string]string, len(params))
	for name, value := range params {
		escaped[name] = url.PathEscape(value)
	}
	path, err := endpoint.Expand(escaped)
	if err != nil {
		return 0, nil, err
	}

	state, err := c.store.Load(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("httptransport: load client state: %w", err)
	}
	headers, needsBearer := c.catalog.AuthFor(endpoint)
	if needsBearer && !state.Authenticated() {
		return 0, nil, ErrUnauthenticated
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if apicatalog.MethodAllowsBody(endpoint.Method) && body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, endpoint.Method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("httptransport: build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", state.Language.String())
	if c.apiKey != "" {
		for _, key := range headers {
			name := key.Name
			if c.apiKeyHeader != "" {
				name = c.apiKeyHeader
			}
			req.Header.Set(name, c.apiKey)
		}
	}
	if state.Authenticated() {
		req.Header.Set("Authorization", "Bearer "+state.AuthToken)
	}

	c.logger.DebugContext(ctx, "request", "operation", opID, "method", endpoint.Method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("httptransport: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, raw, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp.StatusCode, raw, nil
}

// fail records err on span and converts it into the opaque transport error
// the coordinator shows to users.
func (c *Client) fail(span trace.Span, opID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn("request failed", "operation", opID, "error", err)
	if errors.Is(err, ErrUnauthenticated) {
		return &submission.TransportError{Op: opID, Message: "Please sign in again.", Err: err}
	}
	return &submission.TransportError{Op: opID, Message: messageFor(err), Err: err}
}

func messageFor(err error) string {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return submission.DefaultTransportMessage
	}
	var decoded struct {
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(statusErr.Body), &decoded) == nil && strings.TrimSpace(decoded.Message) != "" {
		return strings.TrimSpace(decoded.Message)
	}
	if text := http.StatusText(statusErr.StatusCode); text != "" {
		return text
	}
	return submission.DefaultTransportMessage
}

// encodeMultipart writes fields in key order followed by attachments.
func encodeMultipart(fields map[string]string, attachments []submission.Attachment) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := writer.WriteField(key, fields[key]); err != nil {
			return nil, "", fmt.Errorf("httptransport: write field %s: %w", key, err)
		}
	}

	for _, attachment := range attachments {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, attachment.Field, attachment.Name))
		mimeType := attachment.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		header.Set("Content-Type", mimeType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("httptransport: attach %s: %w", attachment.Field, err)
		}
		if _, err := part.Write(attachment.Data); err != nil {
			return nil, "", fmt.Errorf("httptransport: attach %s: %w", attachment.Field, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("httptransport: close multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}
