// Package contentapi is a client for the WordPress REST API (wp-json/wp/v2): pages, posts and media.
package contentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/logx"
)

// APIPath is appended to the site URL to form the base endpoint.
const APIPath = "/wp-json/wp/v2"

// DefaultTimeout applies when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// Collection names a REST collection.
type Collection string

const (
	Pages Collection = "pages"
	Posts Collection = "posts"
	Media Collection = "media"
)

// Credentials authenticate against the site. Token wins over Username/AppPassword.
type Credentials struct {
	Username    string `json:"username,omitempty"`
	AppPassword string `json:"-"`
	Token       string `json:"-"`
}

func (c Credentials) apply(req *http.Request) {
	switch {
	case c.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.Token)
	case c.Username != "":
		req.SetBasicAuth(c.Username, c.AppPassword)
	}
}

// Document is the writable part of a page or post.
type Document struct {
	Title      string         `json:"title,omitempty"`
	Content    string         `json:"content,omitempty"`
	Excerpt    string         `json:"excerpt,omitempty"`
	Slug       string         `json:"slug,omitempty"`
	Status     string         `json:"status,omitempty"` // publish, draft, ...
	MenuOrder  int            `json:"menu_order,omitempty"`
	Categories []int          `json:"categories,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Resource is the subset of a REST response callers use. Raw holds the full body.
type Resource struct {
	ID     int             `json:"id"`
	Slug   string          `json:"slug"`
	Status string          `json:"status"`
	Link   string          `json:"link"`
	Raw    json.RawMessage `json:"-"`
}

// Op is one REST call relative to the base endpoint.
type Op struct {
	Method string
	Path   string // e.g. "pages/12"
	Query  url.Values
	Body   any // JSON-encoded when non-nil
}

// Client talks to one site.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     *logx.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// New creates a client for siteURL (scheme and host, optionally a path prefix).
func New(siteURL string, creds Credentials, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/") + APIPath,
		creds:      creds,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logx.NewLogger("contentapi").With(u.Host),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the REST endpoint root.
func (c *Client) BaseURL() string { return c.baseURL }

// Do executes op and returns the response body.
//
//	401           -> faults.TypeAuthentication
//	other non-2xx -> faults.TypeAPI with status and body
//	transport     -> faults.TypeNetwork
func (c *Client) Do(ctx context.Context, op Op) (json.RawMessage, error) {
	var body io.Reader
	if op.Body != nil {
		data, err := json.Marshal(op.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", op.Method, op.Path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, op.Method, op.Path, op.Query, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	c.creds.apply(req)
	return req, nil
}

func (c *Client) send(req *http.Request) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.Network(err, req.Method+" "+req.URL.Path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Network(err, "read response of "+req.Method+" "+req.URL.Path)
	}
	c.logger.Debug("%s %s -> %d (%s)", req.Method, req.URL.Path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, faults.Auth(nil, errorMessage(data, "credentials rejected")).WithStatus(resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, faults.API(resp.StatusCode, string(data), errorMessage(data, ""))
	}
	return json.RawMessage(data), nil
}

// errorMessage extracts the message of a WordPress error body ({"code","message","data"}).
func errorMessage(body []byte, fallback string) string {
	var wpErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wpErr) == nil && wpErr.Message != "" {
		if wpErr.Code != "" {
			return wpErr.Code + ": " + wpErr.Message
		}
		return wpErr.Message
	}
	return fallback
}

func decodeResource(data json.RawMessage) (*Resource, error) {
	var r Resource
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, faults.API(http.StatusOK, string(data), "unexpected resource body")
	}
	r.Raw = data
	return &r, nil
}

func itemPath(col Collection, id int) string {
	return string(col) + "/" + strconv.Itoa(id)
}

// Create posts doc to a collection.
func (c *Client) Create(ctx context.Context, col Collection, doc Document) (*Resource, error) {
	data, err := c.Do(ctx, Op{Method: http.MethodPost, Path: string(col), Body: doc})
	if err != nil {
		return nil, err
	}
	return decodeResource(data)
}

// Update overwrites the given fields of an existing item.
func (c *Client) Update(ctx context.Context, col Collection, id int, doc Document) (*Resource, error) {
	data, err := c.Do(ctx, Op{Method: http.MethodPost, Path: itemPath(col, id), Body: doc})
	if err != nil {
		return nil, err
	}
	return decodeResource(data)
}

// Delete removes an item. force skips the trash.
func (c *Client) Delete(ctx context.Context, col Collection, id int, force bool) error {
	var q url.Values
	if force {
		q = url.Values{"force": {"true"}}
	}
	_, err := c.Do(ctx, Op{Method: http.MethodDelete, Path: itemPath(col, id), Query: q})
	return err
}

// FindBySlug returns the item with slug, or nil when none exists.
func (c *Client) FindBySlug(ctx context.Context, col Collection, slug string) (*Resource, error) {
	q := url.Values{"slug": {slug}, "status": {"any"}, "context": {"edit"}}
	data, err := c.Do(ctx, Op{Method: http.MethodGet, Path: string(col), Query: q})
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, faults.API(http.StatusOK, string(data), "expected a list")
	}
	if len(items) == 0 {
		return nil, nil
	}
	return decodeResource(items[0])
}

// Upsert updates the item matching doc.Slug, or creates it.
func (c *Client) Upsert(ctx context.Context, col Collection, doc Document) (*Resource, error) {
	if doc.Slug != "" {
		existing, err := c.FindBySlug(ctx, col, doc.Slug)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return c.Update(ctx, col, existing.ID, doc)
		}
	}
	return c.Create(ctx, col, doc)
}

// CreatePage creates a page from doc.
func (c *Client) CreatePage(ctx context.Context, doc Document) (*Resource, error) {
	return c.Create(ctx, Pages, doc)
}

// UpdatePage overwrites the fields set in doc on page id.
func (c *Client) UpdatePage(ctx context.Context, id int, doc Document) (*Resource, error) {
	return c.Update(ctx, Pages, id, doc)
}

// DeletePage permanently deletes page id, bypassing the trash.
func (c *Client) DeletePage(ctx context.Context, id int) error {
	return c.Delete(ctx, Pages, id, true)
}

// CreatePost creates a post from doc.
func (c *Client) CreatePost(ctx context.Context, doc Document) (*Resource, error) {
	return c.Create(ctx, Posts, doc)
}

// UpdatePost overwrites the fields set in doc on post id.
func (c *Client) UpdatePost(ctx context.Context, id int, doc Document) (*Resource, error) {
	return c.Update(ctx, Posts, id, doc)
}

// DeletePost permanently deletes post id, bypassing the trash.
func (c *Client) DeletePost(ctx context.Context, id int) error {
	return c.Delete(ctx, Posts, id, true)
}

// UploadMedia streams a binary file to the media library.
func (c *Client) UploadMedia(ctx context.Context, filename, contentType string, r io.Reader) (*Resource, error) {
	req, err := c.newRequest(ctx, http.MethodPost, string(Media), nil, r)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))

	data, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return decodeResource(data)
}

// Ping checks that the credentials are accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, Op{Method: http.MethodGet, Path: "users/me"})
	return err
}
