package mentions

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/textnorm"
	"github.com/IshaanNene/mediabias/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newCounter(t *testing.T, parties []config.PartyConfig) *Counter {
	t.Helper()
	dict, err := NewDictionary(parties)
	require.NoError(t, err)
	return NewCounter(dict, testLogger)
}

func count(c *Counter, text string) map[string]int {
	return c.Count(textnorm.Normalize(text))
}

func TestWholeWordMatching(t *testing.T) {
	c := newCounter(t, []config.PartyConfig{{Name: "AfD", Synonyms: []string{"AfD"}}})
	assert.Equal(t, 1, count(c, "AfDler sprach über die AfD")["AfD"])
}

func TestCountDefaultParties(t *testing.T) {
	c := newCounter(t, config.DefaultParties())

	tests := []struct {
		name string
		text string
		want map[string]int
	}{
		{
			name: "synonyms sum per party",
			text: "Die SPD und die Sozialdemokraten streiten mit der CDU.",
			want: map[string]int{"SPD": 2, "CDU/CSU": 1},
		},
		{
			name: "joined party name counts once",
			text: "Die CDU/CSU-Fraktion und die CDU/CSU.",
			want: map[string]int{"CDU/CSU": 1},
		},
		{
			// A plain sum over synonyms would give 4: "Linke" also
			// occurs inside "Die Linke".
			name: "longer form claims tokens",
			text: "Die Linke und die Linken, dazu die Linkspartei.",
			want: map[string]int{"Die Linke": 3},
		},
		{
			name: "nested synonym counted once",
			text: "Die Linke.",
			want: map[string]int{"Die Linke": 1},
		},
		{
			name: "multi word form",
			text: "Die Alternative für Deutschland, kurz AfD.",
			want: map[string]int{"AfD": 2},
		},
		{
			name: "compound words do not match",
			text: "AfD-Fraktion, SPD-Chef und Grünenpolitiker",
			want: map[string]int{},
		},
		{
			name: "case insensitive",
			text: "fdp FDP Fdp",
			want: map[string]int{"FDP": 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := count(c, tt.text)
			require.Len(t, got, 6, "every party gets a count")
			for _, name := range c.dict.Parties() {
				assert.Equal(t, tt.want[name], got[name], name)
			}
		})
	}
}

func TestCountEmptyText(t *testing.T) {
	c := newCounter(t, config.DefaultParties())
	for party, n := range count(c, "   ") {
		assert.Zero(t, n, party)
	}
}

func TestOverlapCountsBothParties(t *testing.T) {
	c := newCounter(t, []config.PartyConfig{
		{Name: "A", Synonyms: []string{"Union"}},
		{Name: "B", Synonyms: []string{"Union", "B-Partei"}},
	})

	got := count(c, "Die Union tagt.")
	assert.Equal(t, 1, got["A"])
	assert.Equal(t, 1, got["B"])

	overlaps := c.dict.Overlaps()
	require.Len(t, overlaps, 1)
	assert.Equal(t, "union", overlaps[0].Form)
	assert.Equal(t, []string{"A", "B"}, overlaps[0].Parties)
}

func TestCountNeverExceedsTokens(t *testing.T) {
	c := newCounter(t, config.DefaultParties())
	text := textnorm.Normalize("Linke Linke Die Linke SPD CDU CSU Union Grüne")
	total := 0
	for _, n := range c.Count(text) {
		total += n
	}
	assert.LessOrEqual(t, total, len(textnorm.Tokens(text)))
}

func TestNewDictionaryErrors(t *testing.T) {
	_, err := NewDictionary(nil)
	require.ErrorIs(t, err, types.ErrEmptyDictionary)
	assert.True(t, types.IsFatal(err))

	_, err = NewDictionary([]config.PartyConfig{{Name: "SPD"}})
	var cfgErr *types.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "parties[0].synonyms", cfgErr.Field)

	_, err = NewDictionary([]config.PartyConfig{{Name: "X", Synonyms: []string{"?!"}}})
	require.Error(t, err)
}

func TestDictionaryForms(t *testing.T) {
	dict, err := NewDictionary([]config.PartyConfig{
		{Name: "Die Linke", Synonyms: []string{"Linke", "Die Linke", "LINKE"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"die linke", "linke"}, dict.Forms("Die Linke"))
	assert.Nil(t, dict.Forms("SPD"))
}

type weekly struct{}

func (weekly) PeriodStart(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func TestRecords(t *testing.T) {
	c := newCounter(t, config.DefaultParties())
	docs := []types.Document{
		{
			URL:         "https://a.example/1",
			Publisher:   "Tagesblatt",
			PublishedAt: time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC),
			Content:     "Die AfD und die AfD.",
		},
		{
			URL:       "https://a.example/2",
			Publisher: "Tagesblatt",
			FetchedAt: time.Date(2025, 9, 8, 7, 0, 0, 0, time.UTC),
		},
		{Publisher: "Tagesblatt", Content: "SPD"},
	}

	records, skipped := c.Records(docs, weekly{})
	require.Len(t, records, 2)
	assert.Equal(t, 1, skipped)

	assert.Equal(t, "https://a.example/1", records[0].DocumentID)
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), records[0].PeriodStart)
	assert.Equal(t, 2, records[0].Count("AfD"))
	assert.Equal(t, 2, records[0].Total())

	assert.Equal(t, time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC), records[1].PeriodStart)
	assert.Zero(t, records[1].Total())
}
