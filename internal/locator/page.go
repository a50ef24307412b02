package locator

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is a parsed snapshot of a Gmail tab.
type Page struct {
	// URL is the tab location at snapshot time, including the fragment.
	URL string
	Doc *goquery.Document

	base *url.URL
}

// ParsePage parses html captured from the tab at pageURL.
func ParsePage(pageURL string, html io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return NewPage(pageURL, doc), nil
}

// ParsePageString is ParsePage for an in-memory document.
func ParsePageString(pageURL, html string) (*Page, error) {
	return ParsePage(pageURL, strings.NewReader(html))
}

// NewPage wraps an already parsed document.
func NewPage(pageURL string, doc *goquery.Document) *Page {
	p := &Page{URL: pageURL, Doc: doc}
	if u, err := url.Parse(pageURL); err == nil && u.IsAbs() {
		p.base = u
	}
	return p
}

// resolve turns a relative href into the absolute form a browser would report.
func (p *Page) resolve(href string) string {
	if p.base == nil || href == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.base.ResolveReference(ref).String()
}
