package fetcher

import (
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// ParseIndex extracts the children of base from an Apache/nginx style
// directory index page. Sort links, fragments and links that leave the
// directory (parent, absolute elsewhere) are ignored.
func ParseIndex(r io.Reader, base *url.URL) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "listing: parse html")
	}

	basePath := base.Path
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}

	seen := make(map[string]bool)
	var entries []Entry
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Host != base.Host || !strings.HasPrefix(abs.Path, basePath) || abs.Path == basePath {
			return
		}
		abs.RawQuery = ""
		abs.Fragment = ""

		rel := strings.TrimPrefix(abs.Path, basePath)
		dir := strings.HasSuffix(rel, "/")
		rel = strings.TrimSuffix(rel, "/")
		if rel == "" || strings.Contains(rel, "/") {
			return
		}
		key := abs.String()
		if seen[key] {
			return
		}
		seen[key] = true
		entries = append(entries, Entry{Name: path.Base(rel), URL: key, Dir: dir})
	})

	return entries, nil
}
