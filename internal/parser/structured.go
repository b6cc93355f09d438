package parser

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/mediabias/internal/types"
)

// Metadata is the article metadata a page declares about itself.
type Metadata struct {
	Title       string
	PublishedAt string
}

// StructuredDataExtractor reads JSON-LD, OpenGraph and meta tags. It
// fills title and publication date when a publisher's rules miss them.
type StructuredDataExtractor struct {
	logger *slog.Logger
}

// NewStructuredDataExtractor creates a new structured data extractor.
func NewStructuredDataExtractor(logger *slog.Logger) *StructuredDataExtractor {
	return &StructuredDataExtractor{
		logger: logger.With("component", "structured_data"),
	}
}

// Extract returns the metadata found in resp. JSON-LD wins over
// OpenGraph, which wins over plain meta tags.
func (sde *StructuredDataExtractor) Extract(resp *types.Response) (Metadata, error) {
	doc, err := resp.Document()
	if err != nil {
		return Metadata{}, err
	}

	var md Metadata
	for _, obj := range sde.extractJSONLD(doc) {
		if md.Title == "" {
			md.Title = stringField(obj, "headline")
		}
		if md.PublishedAt == "" {
			md.PublishedAt = stringField(obj, "datePublished")
		}
	}

	if md.Title == "" {
		md.Title = strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	}
	if md.PublishedAt == "" {
		for _, sel := range []string{
			`meta[property="article:published_time"]`,
			`meta[name="date"]`,
			`meta[name="pubdate"]`,
			`meta[itemprop="datePublished"]`,
		} {
			if v := strings.TrimSpace(doc.Find(sel).AttrOr("content", "")); v != "" {
				md.PublishedAt = v
				break
			}
		}
	}
	if md.PublishedAt == "" {
		md.PublishedAt = strings.TrimSpace(doc.Find("time[datetime]").First().AttrOr("datetime", ""))
	}
	if md.Title == "" {
		md.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	return md, nil
}

// extractJSONLD parses <script type="application/ld+json"> elements,
// flattening arrays and @graph containers into a list of objects.
func (sde *StructuredDataExtractor) extractJSONLD(doc *goquery.Document) []map[string]any {
	var results []map[string]any

	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}

		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			sde.logger.Debug("invalid json-ld", "error", err)
			return
		}
		results = append(results, flattenJSONLD(data)...)
	})

	return results
}

func flattenJSONLD(v any) []map[string]any {
	switch val := v.(type) {
	case []any:
		var out []map[string]any
		for _, e := range val {
			out = append(out, flattenJSONLD(e)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{val}
		if graph, ok := val["@graph"]; ok {
			out = append(out, flattenJSONLD(graph)...)
		}
		return out
	default:
		return nil
	}
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}
