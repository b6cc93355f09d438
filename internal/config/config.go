package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for mediabias.
type Config struct {
	Crawl      CrawlConfig       `mapstructure:"crawl"      yaml:"crawl"`
	Fetcher    FetcherConfig     `mapstructure:"fetcher"    yaml:"fetcher"`
	Publishers []PublisherConfig `mapstructure:"publishers" yaml:"publishers"`
	Datasets   []DatasetConfig   `mapstructure:"datasets"   yaml:"datasets"`
	Parties    []PartyConfig     `mapstructure:"parties"    yaml:"parties"`
	Storage    StorageConfig     `mapstructure:"storage"    yaml:"storage"`
	Logging    LoggingConfig     `mapstructure:"logging"    yaml:"logging"`
	API        APIConfig         `mapstructure:"api"        yaml:"api"`
	Metrics    MetricsConfig     `mapstructure:"metrics"    yaml:"metrics"`
}

// CrawlConfig controls a crawl cycle.
type CrawlConfig struct {
	Concurrency       int           `mapstructure:"concurrency"         yaml:"concurrency"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"     yaml:"request_timeout"`
	CycleTimeout      time.Duration `mapstructure:"cycle_timeout"       yaml:"cycle_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst"               yaml:"burst"`
	RespectRobotsTxt  bool          `mapstructure:"respect_robots_txt"  yaml:"respect_robots_txt"`
	MaxRetries        int           `mapstructure:"max_retries"         yaml:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"         yaml:"retry_delay"`
	MaxFailures       int           `mapstructure:"max_failures"        yaml:"max_failures"`
	UserAgents        []string      `mapstructure:"user_agents"         yaml:"user_agents"`
}

// FetcherConfig controls the HTTP and browser fetchers.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	Headless        bool          `mapstructure:"headless"          yaml:"headless"`
	Stealth         bool          `mapstructure:"stealth"           yaml:"stealth"`
}

// PublisherConfig holds the extraction rules of one outlet or show.
type PublisherConfig struct {
	Name         string      `mapstructure:"name"          yaml:"name"`
	Fetcher      string      `mapstructure:"fetcher"       yaml:"fetcher,omitempty"`
	WaitSelector string      `mapstructure:"wait_selector" yaml:"wait_selector,omitempty"`
	Readability  bool        `mapstructure:"readability"   yaml:"readability"`
	Rules        []ParseRule `mapstructure:"rules"         yaml:"rules"`
}

// ParseRule defines a single extraction rule. Name is the item field the
// rule fills: title, content or published_at.
type ParseRule struct {
	Name      string `mapstructure:"name"      yaml:"name"`
	Selector  string `mapstructure:"selector"  yaml:"selector"`
	Type      string `mapstructure:"type"      yaml:"type"` // css, xpath, regex
	Attribute string `mapstructure:"attribute" yaml:"attribute,omitempty"`
	Pattern   string `mapstructure:"pattern"   yaml:"pattern,omitempty"`
	Multiple  bool   `mapstructure:"multiple"  yaml:"multiple"`
}

// SeedConfig is a listing page and the publisher its articles belong to.
type SeedConfig struct {
	URL       string `mapstructure:"url"       yaml:"url"`
	Publisher string `mapstructure:"publisher" yaml:"publisher"`
}

// DatasetConfig describes one independently aggregated corpus.
type DatasetConfig struct {
	Name            string       `mapstructure:"name"             yaml:"name"`
	Seeds           []SeedConfig `mapstructure:"seeds"            yaml:"seeds"`
	LinkIdentifiers []string     `mapstructure:"link_identifiers" yaml:"link_identifiers"`
	Frequency       string       `mapstructure:"frequency"        yaml:"frequency"` // weekly, monthly
	WeekStart       string       `mapstructure:"week_start"       yaml:"week_start"`
	RollingWindow   int          `mapstructure:"rolling_window"   yaml:"rolling_window"`
	LabelFormat     string       `mapstructure:"label_format"     yaml:"label_format"`
	Since           string       `mapstructure:"since"            yaml:"since,omitempty"`
}

// PartyConfig is one tracked party. A nil ReferenceShare leaves the party
// out of the reference series.
type PartyConfig struct {
	Name           string   `mapstructure:"name"            yaml:"name"`
	Synonyms       []string `mapstructure:"synonyms"        yaml:"synonyms"`
	ReferenceShare *float64 `mapstructure:"reference_share" yaml:"reference_share,omitempty"`
}

// StorageConfig controls where documents and derived tables live.
type StorageConfig struct {
	Type          string        `mapstructure:"type"           yaml:"type"` // csv, sqlite, mongodb
	Dir           string        `mapstructure:"dir"            yaml:"dir"`
	MongoURI      string        `mapstructure:"mongo_uri"      yaml:"mongo_uri,omitempty"`
	MongoDatabase string        `mapstructure:"mongo_database" yaml:"mongo_database,omitempty"`
	Timeout       time.Duration `mapstructure:"timeout"        yaml:"timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// APIConfig controls the query HTTP server.
type APIConfig struct {
	Addr            string        `mapstructure:"addr"             yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsConfig controls the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// Dataset returns the dataset named name.
func (c *Config) Dataset(name string) (DatasetConfig, bool) {
	for _, d := range c.Datasets {
		if d.Name == name {
			return d, true
		}
	}
	return DatasetConfig{}, false
}

// Publisher returns the publisher named name.
func (c *Config) Publisher(name string) (PublisherConfig, bool) {
	for _, p := range c.Publishers {
		if p.Name == name {
			return p, true
		}
	}
	return PublisherConfig{}, false
}

// PartyNames returns the tracked parties in configuration order.
func (c *Config) PartyNames() []string {
	names := make([]string, len(c.Parties))
	for i, p := range c.Parties {
		names[i] = p.Name
	}
	return names
}

// SinceTime parses the optional lower bound for query periods.
func (d DatasetConfig) SinceTime() (time.Time, error) {
	if d.Since == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, d.Since)
}

func share(v float64) *float64 { return &v }

// DefaultParties returns the parties of the 21st German Bundestag with the
// 2025 federal election result as reference share.
func DefaultParties() []PartyConfig {
	return []PartyConfig{
		{Name: "CDU/CSU", Synonyms: []string{"CDU/CSU", "CDU", "CSU", "Union", "Unionsfraktion", "Christdemokraten", "Christlich Demokratische Union", "Christlich-Soziale Union"}, ReferenceShare: share(0.33)},
		{Name: "SPD", Synonyms: []string{"SPD", "Sozialdemokraten", "Sozialdemokratische Partei", "Sozialdemokratische Partei Deutschlands"}, ReferenceShare: share(0.19)},
		{Name: "Grüne", Synonyms: []string{"Grüne", "Grünen", "Bündnis 90/Die Grünen", "Bündnis 90"}, ReferenceShare: share(0.13)},
		{Name: "FDP", Synonyms: []string{"FDP", "Freie Demokraten", "Freie Demokratische Partei", "Liberale"}, ReferenceShare: share(0.00)},
		{Name: "AfD", Synonyms: []string{"AfD", "Alternative für Deutschland"}, ReferenceShare: share(0.24)},
		{Name: "Die Linke", Synonyms: []string{"Die Linke", "Linke", "Linken", "Linkspartei"}, ReferenceShare: share(0.10)},
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			Concurrency:       8,
			RequestTimeout:    30 * time.Second,
			CycleTimeout:      30 * time.Minute,
			RequestsPerSecond: 1,
			Burst:             2,
			RespectRobotsTxt:  true,
			MaxRetries:        2,
			RetryDelay:        2 * time.Second,
			MaxFailures:       0,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			Headless:        true,
		},
		Datasets: []DatasetConfig{
			{
				Name:          "news",
				Frequency:     "weekly",
				WeekStart:     "monday",
				RollingWindow: 4,
				LabelFormat:   time.DateOnly,
				Since:         "2025-08-01",
			},
			{
				Name:          "talkshows",
				Frequency:     "monthly",
				RollingWindow: 3,
				LabelFormat:   "2006-01",
				Since:         "2025-08-01",
			},
		},
		Parties: DefaultParties(),
		Storage: StorageConfig{
			Type:          "csv",
			Dir:           "./data",
			MongoDatabase: "mediabias",
			Timeout:       30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		API: APIConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
