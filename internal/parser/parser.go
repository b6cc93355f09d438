// Package parser turns fetched pages into article links and extracted items.
package parser

import (
	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/types"
)

// Parser applies the rules of a single type to a fetched response and
// fills the matching item fields.
type Parser interface {
	Parse(resp *types.Response, rules []config.ParseRule, item *types.Item) error
}

// setValues stores extracted values on the item. Single-valued rules keep
// the first match; multiple rules keep every match.
func setValues(item *types.Item, rule config.ParseRule, values []string) {
	switch {
	case len(values) == 0:
	case rule.Multiple:
		item.Set(rule.Name, values)
	default:
		item.Set(rule.Name, values[0])
	}
}
