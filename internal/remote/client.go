package remote

import (
	"bytes"
	"context"
	"encoding/base64"
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

	"golang.org/x/time/rate"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
)

const (
	// DefaultAPIURL is the data endpoint of the hosted service.
	DefaultAPIURL = "https://simple-note.appspot.com"
	// DefaultAuthURL is the login endpoint of the hosted service.
	DefaultAuthURL = "https://app.simplenote.com"

	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 100

	defaultUserAgent = "notesync"
	maxErrorBody     = 512
)

// Config holds remote client settings. Zero values fall back to defaults.
type Config struct {
	APIURL    string
	AuthURL   string
	Email     string
	Password  string
	Timeout   time.Duration
	PageSize  int
	RateLimit float64 // requests per second; 0 means unlimited
	UserAgent string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to a Simplenote-compatible HTTP API.
// Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	token string
}

var _ Service = (*Client)(nil)

// NewClient creates a client. No network access happens until the first call;
// the login performed then is reused for the lifetime of the client.
func NewClient(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.AuthURL = strings.TrimRight(cfg.AuthURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}

	return &Client{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
	}
}

type indexPage struct {
	Count int                   `json:"count"`
	Data  []models.NoteMetadata `json:"data"`
	Mark  string                `json:"mark,omitempty"`
}

// ListNotes fetches the full note index, following pagination marks.
func (c *Client) ListNotes(ctx context.Context) ([]models.NoteMetadata, error) {
	var out []models.NoteMetadata
	seen := make(map[string]struct{})
	mark := ""
	for {
		params := url.Values{}
		params.Set("length", strconv.Itoa(c.cfg.PageSize))
		if mark != "" {
			params.Set("mark", mark)
		}
		var page indexPage
		if err := c.do(ctx, http.MethodGet, "/api2/index", params, nil, &page); err != nil {
			return nil, fmt.Errorf("remote: list notes: %w", err)
		}
		for _, m := range page.Data {
			if m.Deleted || m.Key == "" {
				continue
			}
			out = append(out, m)
		}
		if page.Mark == "" {
			return out, nil
		}
		if _, dup := seen[page.Mark]; dup {
			return nil, fmt.Errorf("remote: list notes: repeated page mark %q: %w", page.Mark, apperr.ErrRemoteUnavailable)
		}
		seen[page.Mark] = struct{}{}
		mark = page.Mark
	}
}

// GetNote fetches one note including content.
func (c *Client) GetNote(ctx context.Context, key string) (*models.Note, error) {
	if key == "" {
		return nil, fmt.Errorf("remote: get note: empty key: %w", apperr.ErrNotFound)
	}
	var n models.Note
	if err := c.do(ctx, http.MethodGet, "/api2/data/"+url.PathEscape(key), nil, nil, &n); err != nil {
		return nil, fmt.Errorf("remote: get note %s: %w", key, err)
	}
	if n.Key == "" {
		n.Key = key
	}
	return &n, nil
}

// UpdateNote creates or updates a note and returns the canonical copy.
func (c *Client) UpdateNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	wire := note.Clone()
	wire.LocalKey = ""
	wire.LocalTouch = false
	wire.LModifyDate = 0

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("remote: encode note: %w", err)
	}

	path := "/api2/data"
	if note.Key != "" {
		path += "/" + url.PathEscape(note.Key)
	}
	var n models.Note
	if err := c.do(ctx, http.MethodPost, path, nil, body, &n); err != nil {
		return nil, fmt.Errorf("remote: update note %s: %w", describeKey(note), err)
	}
	if n.Key == "" {
		return nil, fmt.Errorf("remote: update note %s: response without key: %w", describeKey(note), apperr.ErrRemoteUnavailable)
	}
	// The service omits content when it did not change.
	if n.Content == "" {
		n.Content = note.Content
	}
	return &n, nil
}

func describeKey(n *models.Note) string {
	if n.Key != "" {
		return n.Key
	}
	return "(new)"
}

// do performs an authenticated API request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("auth", token)
	params.Set("email", c.cfg.Email)

	resp, err := c.send(ctx, method, c.cfg.APIURL+path+"?"+params.Encode(), body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %v: %w", err, apperr.ErrRemoteUnavailable)
	}
	return nil
}

// authenticate logs in once and caches the token.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	if c.cfg.Email == "" || c.cfg.Password == "" {
		return "", fmt.Errorf("login: missing credentials: %w", apperr.ErrRemoteAuth)
	}

	form := url.Values{}
	form.Set("email", c.cfg.Email)
	form.Set("password", c.cfg.Password)
	payload := []byte(base64.StdEncoding.EncodeToString([]byte(form.Encode())))

	resp, err := c.send(ctx, http.MethodPost, c.cfg.AuthURL+"/api/login", payload, "application/x-www-form-urlencoded")
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("login: status %d: %w", resp.StatusCode, apperr.ErrRemoteUnavailable)
		}
		return "", fmt.Errorf("login: status %d: %w", resp.StatusCode, apperr.ErrRemoteAuth)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("login: read token: %v: %w", err, apperr.ErrRemoteUnavailable)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("login: empty token: %w", apperr.ErrRemoteAuth)
	}
	c.token = token
	return token, nil
}

func (c *Client) send(ctx context.Context, method, target string, body []byte, contentType string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", errors.Join(err, apperr.ErrRemoteUnavailable))
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, token included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("%s %s: %w", method, redact(target), errors.Join(err, apperr.ErrRemoteUnavailable))
	}
	return resp, nil
}

// statusError maps a non-200 response to a classified error.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("status %d", resp.StatusCode)
	if s := strings.TrimSpace(string(snippet)); s != "" {
		msg += ": " + s
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, apperr.ErrRemoteAuth)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, apperr.ErrNotFound)
	case http.StatusConflict, http.StatusPreconditionFailed:
		return fmt.Errorf("%s: %w", msg, apperr.ErrRemoteConflict)
	default:
		return fmt.Errorf("%s: %w", msg, apperr.ErrRemoteUnavailable)
	}
}

// redact strips credentials from a request URL before it reaches logs.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("auth") {
		q.Set("auth", "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
