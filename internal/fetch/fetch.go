// Package fetch defines the page retrieval contract shared by the HTTP,
// headless browser and FlareSolverr backends.
package fetch

import (
	"context"
	"net/http"
	"time"
)

// Page is one retrieved document.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// PageFetcher retrieves a single page. Implementations are safe for
// concurrent use.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}
