package pipeline

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/IshaanNene/mediabias/internal/types"
)

// HTMLSanitizeMiddleware strips markup from text fields. Script and style
// bodies are removed along with their tags.
type HTMLSanitizeMiddleware struct {
	fields  []string
	blockRe *regexp.Regexp
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware(fields ...string) *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		fields:  fields,
		blockRe: regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`),
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(item *types.Item) (*types.Item, error) {
	for _, key := range m.fields {
		s := item.GetString(key)
		if s == "" {
			continue
		}
		cleaned := m.blockRe.ReplaceAllString(s, " ")
		cleaned = m.stripRe.ReplaceAllString(cleaned, " ")
		cleaned = html.UnescapeString(cleaned)
		cleaned = strings.Join(strings.Fields(cleaned), " ")
		item.Set(key, cleaned)
	}
	return item, nil
}

var (
	germanMonthRe = regexp.MustCompile(`\b(Januar|Februar|März|Mai|Juni|Juli|Oktober|Dezember)\b`)
	germanMonths  = map[string]string{
		"Januar":   "January",
		"Februar":  "February",
		"März":     "March",
		"Mai":      "May",
		"Juni":     "June",
		"Juli":     "July",
		"Oktober":  "October",
		"Dezember": "December",
	}
)

// DateNormalizeMiddleware parses date fields into time.Time values.
// A value no layout accepts is removed, so the document falls back to
// its fetch time.
type DateNormalizeMiddleware struct {
	fields    []string
	inFormats []string
}

func NewDateNormalizeMiddleware(fields ...string) *DateNormalizeMiddleware {
	return &DateNormalizeMiddleware{
		fields: fields,
		inFormats: []string{
			time.RFC3339,
			time.RFC1123,
			time.RFC1123Z,
			"2006-01-02T15:04:05Z0700",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
			"02.01.2006, 15:04",
			"02.01.2006 15:04",
			"2.1.2006",
			"02.01.2006",
			"2. January 2006",
			"2 January 2006",
			"January 2, 2006",
		},
	}
}

func (m *DateNormalizeMiddleware) Name() string { return "date_normalize" }

func (m *DateNormalizeMiddleware) Process(item *types.Item) (*types.Item, error) {
	for _, field := range m.fields {
		v, ok := item.Get(field)
		if !ok {
			continue
		}
		if _, isTime := v.(time.Time); isTime {
			continue
		}

		if t, ok := m.parse(item.GetString(field)); ok {
			item.Set(field, t)
		} else {
			item.Delete(field)
		}
	}
	return item, nil
}

func (m *DateNormalizeMiddleware) parse(s string) (time.Time, bool) {
	s = germanMonthRe.ReplaceAllStringFunc(strings.TrimSpace(s), func(m string) string { return germanMonths[m] })
	s = strings.TrimSuffix(strings.TrimSuffix(s, " Uhr"), " MEZ")
	if s == "" {
		return time.Time{}, false
	}
	for _, format := range m.inFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
