// Package parser implements the pure parsing function spec.md treats as an
// external collaborator: Parse(base, bytes) -> {text, links[]}. HTML
// parsing itself is out of spec.md's scope, but a concrete implementation
// is needed to exercise the pipeline end to end, so this adapts the
// teacher's GoqueryParser (crawler/fetcher/parser.go, link extraction) and
// original_source/shared/page.py (text extraction via a recursive text-node
// walk) into one component.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Result is the parser's pure output: the page's visible text and its
// outbound links resolved to absolute URLs.
type Result struct {
	Text  string
	Links []string
}

// Parser extracts text and links from an HTML document, resolving relative
// references against a base URL and skipping links whose extension is in
// the exclusion set (e.g. images, the teacher's ExcludeExtensions).
type Parser struct {
	excludedExts map[string]bool
}

// New creates a Parser. extensions named here (with leading dot, e.g.
// ".png") are never returned as links.
func New(excludedExtensions ...string) *Parser {
	excluded := make(map[string]bool, len(excludedExtensions))
	for _, ext := range excludedExtensions {
		excluded[ext] = true
	}
	return &Parser{excludedExts: excluded}
}

// Parse reads HTML from body, resolving relative hrefs against baseURL. It
// never panics: any goquery/parsing failure is recovered and returned as a
// plain error, matching spec.md's "Parser isolation" design note — a
// failure here must become a Report field, never crash the worker.
func (p *Parser) Parse(baseURL string, body io.Reader) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser: panic recovered: %v", r)
		}
	}()

	// goquery.NewDocumentFromReader consumes the reader. The bytes are teed
	// into a local buffer that is not used afterwards and not returned; a
	// caller that needs the raw bytes keeps its own copy (the pipeline
	// passes a reader over the fetched Content).
	var buf bytes.Buffer
	doc, parseErr := goquery.NewDocumentFromReader(io.TeeReader(body, &buf))
	if parseErr != nil {
		return Result{}, fmt.Errorf("parser: %w", parseErr)
	}

	return Result{
		Text:  extractText(doc),
		Links: p.extractLinks(doc, baseURL),
	}, nil
}

// extractText concatenates the document's visible text nodes, equivalent to
// shared/page.py's `u''.join(recursiveChildGenerator text nodes)`, with
// script/style contents dropped since they are not "visible" text.
func extractText(doc *goquery.Document) string {
	doc.Find("script,style").Remove()
	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	return strings.TrimSpace(text)
}

// extractLinks retrieves anchor hrefs and canonical <link> targets, mirroring
// the teacher's GoqueryParser.extractLinks filter, deduplicating within a
// single document and resolving every href to an absolute URL string.
func (p *Parser) extractLinks(doc *goquery.Document, baseURL string) []string {
	seen := make(map[string]bool)
	links := []string{}

	doc.Find("a,link").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, hrefExists := s.Attr("href")
		relType, relExists := s.Attr("rel")
		anchorOk := s.Is("a") && hrefExists && !p.excludedExts[filepath.Ext(href)]
		canonicalOk := relExists && relType == "canonical" && hrefExists && !p.excludedExts[filepath.Ext(href)]
		return anchorOk || canonicalOk
	}).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved, ok := resolveAbsolute(baseURL, href)
		if !ok || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})

	return links
}

// resolveAbsolute joins a base URL with a (possibly relative) href,
// returning the absolute form and whether resolution succeeded.
func resolveAbsolute(baseURL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if ref.IsAbs() {
		return ref.String(), true
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
