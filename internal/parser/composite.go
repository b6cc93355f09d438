package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"

	readability "github.com/go-shiori/go-readability"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/types"
)

// Extractor applies per-publisher extraction rules to article pages.
// It delegates to the CSS, XPath and regex parsers by rule type and
// merges their results into one item per page.
type Extractor struct {
	css        *CSSParser
	regex      *RegexParser
	xpath      *XPathParser
	structured *StructuredDataExtractor
	publishers map[string]config.PublisherConfig
	logger     *slog.Logger
}

// NewExtractor creates an extractor for the given publishers.
func NewExtractor(publishers []config.PublisherConfig, logger *slog.Logger) *Extractor {
	byName := make(map[string]config.PublisherConfig, len(publishers))
	for _, p := range publishers {
		byName[p.Name] = p
	}
	return &Extractor{
		css:        NewCSSParser(logger),
		regex:      NewRegexParser(logger),
		xpath:      NewXPathParser(logger),
		structured: NewStructuredDataExtractor(logger),
		publishers: byName,
		logger:     logger.With("component", "extractor"),
	}
}

// Links returns every link on a seed page.
func (e *Extractor) Links(resp *types.Response) ([]string, error) {
	return e.css.Links(resp)
}

// Extract builds an item from an article page using the rules of the
// request's publisher. The item may lack content; the pipeline drops it.
func (e *Extractor) Extract(resp *types.Response) (*types.Item, error) {
	pub, ok := e.publishers[resp.Request.Publisher]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownPublisher, resp.Request.Publisher)
	}

	item := types.NewItem(resp.Request.URLString(), pub.Name)
	for _, p := range []Parser{e.css, e.xpath, e.regex} {
		if err := p.Parse(resp, pub.Rules, item); err != nil {
			e.logger.Warn("parser error", "url", item.URL, "error", err)
		}
	}

	if !item.Has(types.FieldTitle) || !item.Has(types.FieldPublishedAt) {
		md, err := e.structured.Extract(resp)
		if err != nil {
			e.logger.Debug("structured data extraction error", "url", item.URL, "error", err)
		}
		if !item.Has(types.FieldTitle) && md.Title != "" {
			item.Set(types.FieldTitle, md.Title)
		}
		if !item.Has(types.FieldPublishedAt) && md.PublishedAt != "" {
			item.Set(types.FieldPublishedAt, md.PublishedAt)
		}
	}

	if item.GetString(types.FieldContent) == "" && pub.Readability {
		e.applyReadability(resp, item)
	}

	return item, nil
}

// applyReadability fills missing fields from the readability article.
func (e *Extractor) applyReadability(resp *types.Response, item *types.Item) {
	pageURL, err := url.Parse(resp.BaseURL())
	if err != nil {
		return
	}
	article, err := readability.FromReader(bytes.NewReader(resp.Body), pageURL)
	if err != nil {
		e.logger.Debug("readability failed", "url", item.URL, "error", err)
		return
	}

	if article.TextContent != "" {
		item.Set(types.FieldContent, article.TextContent)
	}
	if !item.Has(types.FieldTitle) && article.Title != "" {
		item.Set(types.FieldTitle, article.Title)
	}
	if !item.Has(types.FieldPublishedAt) && article.PublishedTime != nil {
		item.Set(types.FieldPublishedAt, *article.PublishedTime)
	}
	e.logger.Debug("readability fallback used", "url", item.URL, "length", article.Length)
}
