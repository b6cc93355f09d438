// Package mentions counts party mentions in normalized document text.
package mentions

import (
	"fmt"
	"slices"
	"strings"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/textnorm"
	"github.com/IshaanNene/mediabias/internal/types"
)

// party is one dictionary entry. Forms are token sequences ordered longest
// first.
type party struct {
	name  string
	forms [][]string
}

// Dictionary maps each party to its normalized surface forms. It is
// immutable after construction.
type Dictionary struct {
	parties []party
}

// Overlap is a normalized surface form claimed by more than one party.
type Overlap struct {
	Form    string
	Parties []string
}

// NewDictionary normalizes the synonyms of parties. Parties keep the given
// order. An empty party list, a party without synonyms or a synonym that
// normalizes to nothing is a *types.ConfigError.
func NewDictionary(parties []config.PartyConfig) (*Dictionary, error) {
	if len(parties) == 0 {
		return nil, &types.ConfigError{Field: "parties", Err: types.ErrEmptyDictionary}
	}

	d := &Dictionary{parties: make([]party, 0, len(parties))}
	for i, p := range parties {
		field := fmt.Sprintf("parties[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			return nil, &types.ConfigError{Field: field + ".name", Err: fmt.Errorf("party name is empty")}
		}

		seen := make(map[string]bool, len(p.Synonyms))
		var forms [][]string
		for _, syn := range p.Synonyms {
			norm := textnorm.Normalize(syn)
			if norm == "" {
				return nil, &types.ConfigError{
					Field: field + ".synonyms",
					Err:   fmt.Errorf("synonym %q of %q normalizes to nothing", syn, p.Name),
				}
			}
			if seen[norm] {
				continue
			}
			seen[norm] = true
			forms = append(forms, textnorm.Tokens(norm))
		}
		if len(forms) == 0 {
			return nil, &types.ConfigError{
				Field: field + ".synonyms",
				Err:   fmt.Errorf("%w: party %q has no synonyms", types.ErrEmptyDictionary, p.Name),
			}
		}

		slices.SortStableFunc(forms, func(a, b []string) int {
			return len(b) - len(a)
		})
		d.parties = append(d.parties, party{name: p.Name, forms: forms})
	}
	return d, nil
}

// Parties returns the party names in dictionary order.
func (d *Dictionary) Parties() []string {
	names := make([]string, len(d.parties))
	for i, p := range d.parties {
		names[i] = p.name
	}
	return names
}

// Forms returns the normalized surface forms of name, longest first.
func (d *Dictionary) Forms(name string) []string {
	for _, p := range d.parties {
		if p.name != name {
			continue
		}
		out := make([]string, len(p.forms))
		for i, f := range p.forms {
			out[i] = strings.Join(f, " ")
		}
		return out
	}
	return nil
}

// Overlaps lists surface forms shared by two or more parties, ordered by
// first appearance.
func (d *Dictionary) Overlaps() []Overlap {
	owners := make(map[string][]string)
	var order []string
	for _, p := range d.parties {
		for _, f := range p.forms {
			form := strings.Join(f, " ")
			if _, ok := owners[form]; !ok {
				order = append(order, form)
			}
			owners[form] = append(owners[form], p.name)
		}
	}

	var out []Overlap
	for _, form := range order {
		if len(owners[form]) > 1 {
			out = append(out, Overlap{Form: form, Parties: owners[form]})
		}
	}
	return out
}
