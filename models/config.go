// Package models defines data structures for configuration, pages and graph entities.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when no --config flag is given.
const DefaultConfigFile = "config.yaml"

// Config is the full application configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Storage   StorageConfig   `yaml:"storage"`
	Graph     GraphConfig     `yaml:"graph"`
	Search    SearchConfig    `yaml:"search"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding LLMConfig       `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	HTTP      HTTPConfig      `yaml:"http"`
}

type AppConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or text
	DataDir   string `yaml:"data_dir"`
}

func (c AppConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("json", "text")),
		validation.Field(&c.DataDir, validation.Required),
	)
}

// ThumbnailRule rewrites a thumbnail image URL into its full resolution form.
type ThumbnailRule struct {
	Old string `yaml:"old"`
	New string `yaml:"new"`
}

// CrawlConfig holds crawler and fetcher settings.
type CrawlConfig struct {
	Keyword            string          `yaml:"keyword"`
	Seeds              []string        `yaml:"seeds"`
	SearchURL          string          `yaml:"search_url"` // contains {keyword}
	MaxDepth           int             `yaml:"max_depth"`
	Workers            int             `yaml:"workers"` // 0 means NumCPU-1
	ContainerSelector  string          `yaml:"container_selector"`
	StopPhrases        []string        `yaml:"stop_phrases"`
	ThumbnailRules     []ThumbnailRule `yaml:"thumbnail_rules"`
	AllowedDomains     []string        `yaml:"allowed_domains"`
	UserAgent          string          `yaml:"user_agent"`
	Timeout            time.Duration   `yaml:"timeout"`
	RequestsPerSecond  float64         `yaml:"requests_per_second"`
	Retries            int             `yaml:"retries"`
	RetryDelay         time.Duration   `yaml:"retry_delay"`
	CacheTTL           time.Duration   `yaml:"cache_ttl"` // 0 disables the HTML cache
	ImageContextWindow int             `yaml:"image_context_window"`
}

func (c CrawlConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxDepth, validation.Required, validation.Min(1)),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.Retries, validation.Min(0)),
		validation.Field(&c.ImageContextWindow, validation.Min(0)),
	)
}

// LedgerConfig selects the de-duplication ledger backend.
type LedgerConfig struct {
	Backend     string        `yaml:"backend"` // file or sqlite
	Dir         string        `yaml:"dir"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

func (c LedgerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In("file", "sqlite")),
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.LockTimeout, validation.Required),
	)
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

func (c StorageConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// GraphConfig configures the entity graph store and the dump parser.
type GraphConfig struct {
	Driver       string   `yaml:"driver"` // sqlite or postgres
	DSN          string   `yaml:"dsn"`
	SiteSuffixes []string `yaml:"site_suffixes"`
	PageMarker   string   `yaml:"page_marker"` // regexp matched against the second dump line
	FirstPage    string   `yaml:"first_page"`
}

func (c GraphConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.FirstPage, validation.Required),
	)
}

// SearchConfig selects the similarity search backend.
type SearchConfig struct {
	Backend string `yaml:"backend"` // local or pgvector
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
	K       int    `yaml:"k"`
}

func (c SearchConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In("local", "pgvector")),
		validation.Field(&c.DSN, validation.When(c.Backend == "pgvector", validation.Required)),
		validation.Field(&c.K, validation.Required, validation.Min(1)),
	)
}

// LLMConfig configures an OpenAI compatible endpoint.
type LLMConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	APIURL   string        `yaml:"api_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ChatConfig configures answer generation.
type ChatConfig struct {
	Mode            string `yaml:"mode"` // graph or quick
	MaxSiblings     int    `yaml:"max_siblings"`
	QuickK          int    `yaml:"quick_k"`
	SystemPrompt    string `yaml:"system_prompt"`
	GraphPrompt     string `yaml:"graph_prompt"`
	QuickPrompt     string `yaml:"quick_prompt"`
	NoContentAnswer string `yaml:"no_content_answer"`
}

func (c ChatConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.Required, validation.In("graph", "quick")),
		validation.Field(&c.MaxSiblings, validation.Min(0)),
		validation.Field(&c.QuickK, validation.Min(1)),
		validation.Field(&c.GraphPrompt, validation.Required),
		validation.Field(&c.QuickPrompt, validation.Required),
		validation.Field(&c.NoContentAnswer, validation.Required),
	)
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

func (c HTTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
	)
}

// Validate checks every section.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.App),
		validation.Field(&c.Crawl),
		validation.Field(&c.Ledger),
		validation.Field(&c.Storage),
		validation.Field(&c.Graph),
		validation.Field(&c.Search),
		validation.Field(&c.Chat),
		validation.Field(&c.HTTP),
	)
}

const defaultGraphPrompt = `You are a walkthrough assistant for the game. Answer the Question using only the Context and reply in Markdown.
Each Subtitle_content keeps the page's images inline as <img> tags in their original position. When an image helps the answer,
insert it next to the paragraph it belongs to using the form [![description](image src)](page url).
End the answer with the most relevant Subtitle_page_url links so the player can read the original pages.

Question:
{{.Question}}

Context:
{{.Context}}

Answer:
`

const defaultQuickPrompt = `You are a walkthrough assistant for the game. Answer the Question using the Context and reply in Markdown.
Each Image entry has the text before the image, its description and the text after it. Use them to place the most relevant
images next to the matching paragraph using the form [![description](image src)](page url).
End the answer with the most relevant page urls from the Context.

Question:
{{.Question}}

Context:
{{.Context}}

Image:
{{.Images}}

Answer:
`

// NewDefaultConfig returns a configuration that works without a config file.
func NewDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:  "info",
			LogFormat: "json",
			DataDir:   "data",
		},
		Crawl: CrawlConfig{
			SearchURL:         "https://so.gamersky.com/all/handbook?s={keyword}",
			MaxDepth:          2,
			ContainerSelector: "div.Mid2L_con",
			StopPhrases: []string{
				"本文由游民星空制作发布",
				"上一页",
				"下一页",
				"已解决问题",
			},
			ThumbnailRules: []ThumbnailRule{
				{Old: "_S.", New: "."},
				{Old: "/small_", New: "/"},
			},
			UserAgent:          "Mozilla/5.0 (compatible; mmgamerag/1.0)",
			Timeout:            15 * time.Second,
			RequestsPerSecond:  4,
			Retries:            2,
			RetryDelay:         time.Second,
			CacheTTL:           24 * time.Hour,
			ImageContextWindow: 200,
		},
		Ledger: LedgerConfig{
			Backend:     "file",
			Dir:         "data/ledger",
			LockTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Dir: "data/pages",
		},
		Graph: GraphConfig{
			Driver:       "sqlite",
			DSN:          "data/graph.db",
			SiteSuffixes: []string{"-游民星空 GamerSky.com"},
			PageMarker:   `^(第.+页|[Pp]age\s*\d+)`,
			FirstPage:    "page 1",
		},
		Search: SearchConfig{
			Backend: "local",
			Table:   "walkthrough_embeddings",
			K:       4,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			APIKey:   "${OPENAI_API_KEY}",
			Timeout:  60 * time.Second,
		},
		Embedding: LLMConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			APIKey:   "${OPENAI_API_KEY}",
			Timeout:  120 * time.Second,
		},
		Chat: ChatConfig{
			Mode:            "graph",
			MaxSiblings:     16,
			QuickK:          5,
			SystemPrompt:    "You answer questions about the game's walkthroughs.",
			GraphPrompt:     defaultGraphPrompt,
			QuickPrompt:     defaultQuickPrompt,
			NoContentAnswer: "No relevant walkthrough content was found for this question.",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// SetDataDir moves every on-disk location under dir. A PostgreSQL graph DSN
// is left alone.
func (c *Config) SetDataDir(dir string) {
	c.App.DataDir = dir
	c.Ledger.Dir = filepath.Join(dir, "ledger")
	c.Storage.Dir = filepath.Join(dir, "pages")
	if c.Graph.Driver == "sqlite" {
		c.Graph.DSN = filepath.Join(dir, "graph.db")
	}
}

// LoadConfig reads a YAML config on top of the defaults. Environment
// variables (and a .env file when present) are expanded before parsing.
// A missing file at the default location is not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := NewDefaultConfig()
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.LLM.APIKey = os.ExpandEnv(cfg.LLM.APIKey)
	cfg.Embedding.APIKey = os.ExpandEnv(cfg.Embedding.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
