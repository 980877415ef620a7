package document

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Element is a link or image found in a page.
type Element struct {
	Tag  string // lower-case tag name ("a", "img")
	Text string
	Href string
	Src  string
}

// TagName returns the upper-case DOM tag name.
func (e Element) TagName() string {
	return strings.ToUpper(e.Tag)
}

// Label returns a one-line description suitable for a text viewport.
func (e Element) Label() string {
	switch e.Tag {
	case "img":
		alt := e.Text
		if alt == "" {
			alt = e.Src
		}
		return "[img] " + alt
	case "a":
		text := e.Text
		if text == "" {
			text = e.Href
		}
		return "[link] " + text
	default:
		return e.Text
	}
}

// Page is the parsed form of a fetched document.
type Page struct {
	URL      string
	Title    string
	Scripts  []string
	Elements []Element
}

// ParsePage parses HTML into a Page. Inline scripts are collected in
// document order; external scripts are skipped.
func ParsePage(url string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}

	page := &Page{
		URL:   url,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if typ, ok := s.Attr("type"); ok && typ != "" && !isScriptType(typ) {
			return
		}
		if body := s.Text(); strings.TrimSpace(body) != "" {
			page.Scripts = append(page.Scripts, body)
		}
	})

	doc.Find("a[href], img[src]").Each(func(_ int, s *goquery.Selection) {
		el := Element{Tag: goquery.NodeName(s)}
		el.Href, _ = s.Attr("href")
		el.Src, _ = s.Attr("src")
		if el.Tag == "img" {
			el.Text, _ = s.Attr("alt")
		} else {
			el.Text = strings.Join(strings.Fields(s.Text()), " ")
		}
		page.Elements = append(page.Elements, el)
	})

	return page, nil
}

func isScriptType(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}
