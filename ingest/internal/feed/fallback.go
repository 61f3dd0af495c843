package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// parseFallback walks the XML token stream with strictness disabled and
// collects <item>/<entry> elements directly. It tolerates the violations
// that make strict parsers bail: undefined entities, HTML-style autoclosed
// tags, junk before the prolog.
func parseFallback(data []byte) (*Feed, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity

	f := &Feed{}
	var (
		inItem  bool
		cur     Entry
		curPerm string // guid isPermaLink attribute value
		stack   []string
		text    strings.Builder
	)

	flushText := func() string {
		s := strings.TrimSpace(text.String())
		text.Reset()
		return s
	}

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Salvage whatever was collected before the stream broke.
			if len(f.Entries) > 0 {
				return f, nil
			}
			return nil, fmt.Errorf("feed: lenient parse: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			stack = append(stack, name)
			text.Reset()

			switch name {
			case "item", "entry":
				inItem = true
				cur = Entry{}
				curPerm = ""
			case "guid":
				for _, a := range t.Attr {
					if strings.EqualFold(a.Name.Local, "ispermalink") {
						curPerm = strings.ToLower(a.Value)
					}
				}
			case "link":
				if inItem {
					// Atom: value is in the href attribute.
					var href, rel string
					for _, a := range t.Attr {
						switch strings.ToLower(a.Name.Local) {
						case "href":
							href = strings.TrimSpace(a.Value)
						case "rel":
							rel = strings.ToLower(a.Value)
						}
					}
					if href != "" && (rel == "" || rel == "alternate") {
						cur.Links.Alternates = append(cur.Links.Alternates, href)
					}
				}
			case "enclosure":
				if inItem {
					var eurl, etype string
					for _, a := range t.Attr {
						switch strings.ToLower(a.Name.Local) {
						case "url":
							eurl = a.Value
						case "type":
							etype = a.Value
						}
					}
					if cur.Image == "" && strings.HasPrefix(etype, "image/") {
						cur.Image = eurl
					}
				}
			}

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			name := strings.ToLower(t.Name.Local)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if !inItem {
				text.Reset()
				continue
			}
			val := flushText()
			switch name {
			case "item", "entry":
				inItem = false
				if cur.Title != "" || cur.Links.Resolve() != "" {
					f.Entries = append(f.Entries, cur)
				}
			case "title":
				cur.Title = val
			case "link":
				if val != "" {
					cur.Links.Primary = val
				}
			case "origlink":
				cur.Links.Orig = val
			case "guid", "id":
				cur.GUID = val
				if curPerm == "true" ||
					strings.HasPrefix(val, "http://") || strings.HasPrefix(val, "https://") {
					cur.Links.PermalinkGUID = val
				}
			case "description", "summary":
				if cur.Description == "" {
					cur.Description = val
				}
			case "encoded", "content":
				if cur.Content == "" {
					cur.Content = val
				}
			case "author", "creator":
				if cur.Author == "" {
					cur.Author = val
				}
			case "name":
				// Atom <author><name>.
				if cur.Author == "" && len(stack) > 0 && stack[len(stack)-1] == "author" {
					cur.Author = val
				}
			case "pubdate", "published", "updated", "date":
				if cur.PublishedRaw == "" {
					cur.PublishedRaw = val
				}
			case "category":
				if val != "" {
					cur.Categories = append(cur.Categories, val)
				}
			}
		}
	}

	if len(f.Entries) == 0 {
		return nil, fmt.Errorf("feed: lenient parse found no entries")
	}
	return f, nil
}
