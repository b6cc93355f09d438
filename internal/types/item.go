package types

import (
	"strings"
	"time"
)

// Field names the extractor fills and the pipeline middlewares read.
const (
	FieldTitle       = "title"
	FieldContent     = "content"
	FieldPublishedAt = "published_at"
)

// Item is the loosely-typed record an extraction produces before the
// pipeline has cleaned it into a Document.
type Item struct {
	// Fields stores the extracted key-value data.
	Fields map[string]any

	// URL is the source page URL this item was extracted from.
	URL string

	// Publisher is the publisher whose rules produced this item.
	Publisher string

	// Timestamp is when this item was created.
	Timestamp time.Time
}

// NewItem creates a new empty Item from a source URL.
func NewItem(sourceURL, publisher string) *Item {
	return &Item{
		Fields:    make(map[string]any),
		URL:       sourceURL,
		Publisher: publisher,
		Timestamp: time.Now(),
	}
}

// Set sets a field value.
func (i *Item) Set(key string, value any) {
	i.Fields[key] = value
}

// Get retrieves a field value.
func (i *Item) Get(key string) (any, bool) {
	v, ok := i.Fields[key]
	return v, ok
}

// GetString retrieves a field value as a string. Multi-valued fields are
// joined with a newline.
func (i *Item) GetString(key string) string {
	v, ok := i.Fields[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, "\n")
	default:
		return ""
	}
}

// Has returns true if the field exists.
func (i *Item) Has(key string) bool {
	_, ok := i.Fields[key]
	return ok
}

// Delete removes a field.
func (i *Item) Delete(key string) {
	delete(i.Fields, key)
}

// ToDocument converts a cleaned item into a Document. A published_at
// field that is not a time.Time is ignored.
func (i *Item) ToDocument() Document {
	doc := Document{
		URL:       i.URL,
		Publisher: i.Publisher,
		Title:     i.GetString(FieldTitle),
		Content:   i.GetString(FieldContent),
		FetchedAt: i.Timestamp.UTC(),
	}
	if t, ok := i.Fields[FieldPublishedAt].(time.Time); ok {
		doc.PublishedAt = t.UTC()
	}
	return doc
}
