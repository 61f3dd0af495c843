package guard

import (
	"bytes"
	"strings"
)

// challengeMarkers are strings that anti-bot interstitials (Cloudflare and
// friends) put in the page served instead of real content. Matching requires
// the body to also look like a full HTML document, so a feed that merely
// quotes one of these phrases in an article isn't misclassified.
var challengeMarkers = []string{
	"checking your browser",
	"just a moment",
	"ray id",
	"attention required",
	"cf-browser-verification",
	"cf-challenge",
	"challenge-platform",
	"turnstile",
	"ddos protection by",
	"verify you are a human",
	"enable javascript and cookies to continue",
}

// IsChallenge reports whether body is an anti-bot challenge page rather than
// real content.
func IsChallenge(body []byte) bool {
	if !LooksLikeHTMLDocument(body) {
		return false
	}
	lower := bytes.ToLower(body)
	for _, m := range challengeMarkers {
		if bytes.Contains(lower, []byte(m)) {
			return true
		}
	}
	return false
}

// LooksLikeHTMLDocument reports whether the first bytes of body open an HTML
// document. Used both by the challenge detector and by the feed path to catch
// HTML served where XML was expected.
func LooksLikeHTMLDocument(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 100 {
		head = head[:100]
	}
	return bytes.Contains(head, []byte("<!doctype html")) ||
		bytes.Contains(head, []byte("<html"))
}

// LooksLikeFeed reports whether body opens an RSS/Atom document.
func LooksLikeFeed(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 200 {
		head = head[:200]
	}
	return bytes.Contains(head, []byte("<?xml")) ||
		bytes.Contains(head, []byte("<rss")) ||
		bytes.Contains(head, []byte("<feed")) ||
		bytes.Contains(head, []byte("<rdf"))
}

// Preview returns the first n characters of body, whitespace-collapsed, for
// breaker diagnostics.
func Preview(body []byte, n int) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > n {
		s = s[:n]
	}
	return s
}
