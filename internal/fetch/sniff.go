package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IsChallengePage reports whether the body looks like an anti-bot
// interstitial rather than real content. Distributor jobs use this to
// escalate from the plain HTTP fetcher to FlareSolverr or a headless
// browser.
func IsChallengePage(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}

	title := strings.ToLower(doc.Find("title").First().Text())
	for _, marker := range []string{
		"just a moment",
		"attention required",
		"checking your browser",
		"access denied",
	} {
		if strings.Contains(title, marker) {
			return true
		}
	}

	// Cloudflare's challenge markup carries well-known ids.
	if doc.Find("#challenge-form, #challenge-running, #cf-challenge-running").Length() > 0 {
		return true
	}
	return false
}
