// Package htmlimg finds and removes <img> elements in product description
// fragments.
package htmlimg

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractionError means a description fragment could not be parsed.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract images: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExtractImages returns the src of every img element in document order.
// Elements without a src are skipped.
func ExtractImages(fragment string) ([]string, error) {
	doc, err := parse(fragment)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}
	var uris []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			uris = append(uris, src)
		}
	})
	return uris, nil
}

// StripImages removes every img element whose src is in uris and renders the
// remaining fragment. The bool reports whether anything was removed.
func StripImages(fragment string, uris []string) (string, bool, error) {
	doc, err := parse(fragment)
	if err != nil {
		return "", false, &ExtractionError{Err: err}
	}
	drop := make(map[string]bool, len(uris))
	for _, u := range uris {
		drop[u] = true
	}
	removed := false
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && drop[src] {
			s.Remove()
			removed = true
		}
	})
	out, err := doc.Html()
	if err != nil {
		return "", false, fmt.Errorf("render fragment: %w", err)
	}
	return out, removed, nil
}

// parse reads fragment in a <body> context and hangs the nodes off a detached
// container so Html() renders exactly the fragment, without html/head/body.
func parse(fragment string) (*goquery.Document, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return nil, err
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return goquery.NewDocumentFromNode(root), nil
}
