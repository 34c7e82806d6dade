// Package flaresolverr implements fetch.PageFetcher by proxying requests
// through a FlareSolverr instance, which solves anti-bot challenges with
// a managed browser session.
package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/metaltracker/parser-service/internal/fetch"
)

// Config controls the FlareSolverr client.
type Config struct {
	// Endpoint is the FlareSolverr /v1 URL, e.g. http://localhost:8191/v1.
	Endpoint string

	// MaxTimeout is how long FlareSolverr may spend solving a challenge.
	MaxTimeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks the FlareSolverr v1 request protocol.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("flaresolverr endpoint is required")
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// The solver itself can take the full MaxTimeout; leave headroom
		// for transport overhead.
		httpClient = &http.Client{Timeout: cfg.MaxTimeout + 15*time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

type solveRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url,omitempty"`
	Session    string `json:"session,omitempty"`
	MaxTimeout int    `json:"maxTimeout,omitempty"`
}

type solveResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Session  string `json:"session"`
	Solution struct {
		URL      string            `json:"url"`
		Status   int               `json:"status"`
		Headers  map[string]string `json:"headers"`
		Response string            `json:"response"`
	} `json:"solution"`
}

// Fetch asks FlareSolverr to retrieve the page, solving any challenge in
// the way. Each call gets a throwaway browser session.
func (c *Client) Fetch(ctx context.Context, url string) (fetch.Page, error) {
	return c.fetch(ctx, url, "")
}

// NewSession creates a persistent browser session on the solver. Reusing
// one session across a crawl keeps the solved cookies, so only the first
// request pays the challenge cost. The caller owns the session and must
// Close it; FlareSolverr never expires sessions on its own.
func (c *Client) NewSession(ctx context.Context) (*Session, error) {
	resp, err := c.solve(ctx, solveRequest{Cmd: "sessions.create"})
	if err != nil {
		return nil, err
	}
	if resp.Session == "" {
		return nil, fmt.Errorf("flaresolverr returned no session id")
	}
	return &Session{client: c, id: resp.Session}, nil
}

// Session pins fetches to one solver browser session.
type Session struct {
	client *Client
	id     string
}

// ID returns the solver-side session identifier.
func (s *Session) ID() string { return s.id }

// Fetch retrieves the page through this session.
func (s *Session) Fetch(ctx context.Context, url string) (fetch.Page, error) {
	return s.client.fetch(ctx, url, s.id)
}

// Close destroys the remote browser session.
func (s *Session) Close(ctx context.Context) error {
	_, err := s.client.solve(ctx, solveRequest{Cmd: "sessions.destroy", Session: s.id})
	return err
}

// SessionFetcher pins fetches to one lazily created solver session, so
// only the first request of a crawl pays the challenge cost. Close
// destroys the session; the next Fetch after Close opens a fresh one.
type SessionFetcher struct {
	client  *Client
	mu      sync.Mutex
	session *Session
}

// NewSessionFetcher wraps the client in a session-scoped fetcher.
func NewSessionFetcher(client *Client) *SessionFetcher {
	return &SessionFetcher{client: client}
}

// Fetch retrieves the page through the current session, creating one on
// first use.
func (f *SessionFetcher) Fetch(ctx context.Context, url string) (fetch.Page, error) {
	session, err := f.current(ctx)
	if err != nil {
		return fetch.Page{}, err
	}
	return session.Fetch(ctx, url)
}

func (f *SessionFetcher) current(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		session, err := f.client.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		f.session = session
	}
	return f.session, nil
}

// Close destroys the solver session, if one was opened. FlareSolverr
// never expires sessions on its own, so every crawl must end here.
func (f *SessionFetcher) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil
	}
	err := f.session.Close(ctx)
	f.session = nil
	return err
}

func (c *Client) fetch(ctx context.Context, url, session string) (fetch.Page, error) {
	start := time.Now()
	solved, err := c.solve(ctx, solveRequest{
		Cmd:        "request.get",
		URL:        url,
		Session:    session,
		MaxTimeout: int(c.cfg.MaxTimeout / time.Millisecond),
	})
	if err != nil {
		return fetch.Page{}, err
	}

	headers := http.Header{}
	for k, v := range solved.Solution.Headers {
		headers.Set(k, v)
	}
	return fetch.Page{
		URL:        solved.Solution.URL,
		StatusCode: solved.Solution.Status,
		Headers:    headers,
		Body:       []byte(solved.Solution.Response),
		Duration:   time.Since(start),
	}, nil
}

func (c *Client) solve(ctx context.Context, request solveRequest) (solveResponse, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return solveResponse{}, fmt.Errorf("marshal flaresolverr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return solveResponse{}, fmt.Errorf("build flaresolverr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return solveResponse{}, fmt.Errorf("call flaresolverr: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return solveResponse{}, fmt.Errorf("read flaresolverr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return solveResponse{}, fmt.Errorf("flaresolverr returned HTTP %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var solved solveResponse
	if err := json.Unmarshal(body, &solved); err != nil {
		return solveResponse{}, fmt.Errorf("decode flaresolverr response: %w", err)
	}
	if solved.Status != "ok" {
		return solveResponse{}, fmt.Errorf("flaresolverr %s failed: %s", request.Cmd, solved.Message)
	}
	return solved, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
