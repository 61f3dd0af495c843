package scrape

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// minTitleLen rejects anchor texts too short to be headlines.
const minTitleLen = 15

// skipPhrases are visible texts that are never article headlines.
var skipPhrases = map[string]bool{
	"read more":      true,
	"learn more":     true,
	"more news":      true,
	"view all":       true,
	"see all":        true,
	"subscribe":      true,
	"sign in":        true,
	"sign up":        true,
	"log in":         true,
	"login":          true,
	"register":       true,
	"advertise":      true,
	"contact us":     true,
	"about us":       true,
	"privacy policy": true,
	"terms of use":   true,
	"newsletter":     true,
	"next":           true,
	"previous":       true,
}

// selectorFamily is one CSS strategy for finding articles on a page.
// Families are tried in priority order; the first one that yields anything
// wins.
type selectorFamily struct {
	item        string // container selector
	title       string // relative to item; empty = use item text
	link        string // relative to item; empty = item itself must be/contain <a>
	description string
	image       string
	author      string
}

// extractFamilies runs the layered selector strategy over a document.
func extractFamilies(doc *goquery.Document, base *url.URL, fams []selectorFamily) []RawArticle {
	for _, fam := range fams {
		var out []RawArticle
		doc.Find(fam.item).Each(func(_ int, s *goquery.Selection) {
			a := articleFromSelection(s, base, fam)
			if a != nil {
				out = append(out, *a)
			}
		})
		if len(out) > 0 {
			return dedupByLink(out)
		}
	}
	return nil
}

func articleFromSelection(s *goquery.Selection, base *url.URL, fam selectorFamily) *RawArticle {
	linkSel := s
	if fam.link != "" {
		linkSel = s.Find(fam.link).First()
	} else if !s.Is("a") {
		linkSel = s.Find("a[href]").First()
	}
	href, _ := linkSel.Attr("href")
	link := resolveURL(base, href)
	if link == "" {
		return nil
	}

	title := strings.TrimSpace(linkSel.Text())
	if fam.title != "" {
		if t := strings.TrimSpace(s.Find(fam.title).First().Text()); t != "" {
			title = t
		}
	}
	if !viableTitle(title) {
		return nil
	}

	a := &RawArticle{Title: collapseWS(title), Link: link}
	if fam.description != "" {
		a.Description = collapseWS(s.Find(fam.description).First().Text())
	}
	if fam.image != "" {
		if src, ok := s.Find(fam.image).First().Attr("src"); ok {
			a.Image = resolveURL(base, src)
		}
	}
	if fam.author != "" {
		a.Author = collapseWS(s.Find(fam.author).First().Text())
	}
	return a
}

// extractAnchors is the broadened last-resort pass: every anchor on the
// page, filtered by URL pattern and link-text heuristics.
func extractAnchors(body []byte, base *url.URL, patterns []*regexp.Regexp) []RawArticle {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var out []RawArticle
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href string
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = attr.Val
					break
				}
			}
			link := resolveURL(base, href)
			text := collapseWS(nodeText(n))
			if link != "" && viableTitle(text) && matchesAny(link, patterns) {
				out = append(out, RawArticle{Title: text, Link: link})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return dedupByLink(out)
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func matchesAny(link string, patterns []*regexp.Regexp) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p.MatchString(link) {
			return true
		}
	}
	return false
}

// viableTitle rejects boilerplate link texts and too-short candidates.
func viableTitle(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < minTitleLen {
		return false
	}
	return !skipPhrases[strings.ToLower(s)]
}

// dedupByLink keeps the first article per link within one extraction pass.
func dedupByLink(in []RawArticle) []RawArticle {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, a := range in {
		key := strings.ToLower(strings.TrimRight(a.Link, "/"))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(strings.ToLower(href), "javascript:") ||
		strings.HasPrefix(strings.ToLower(href), "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func collapseWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
