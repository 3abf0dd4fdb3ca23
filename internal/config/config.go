package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	PDF      PDFConfig      `yaml:"pdf" mapstructure:"pdf"`
	Veille   VeilleConfig   `yaml:"veille" mapstructure:"veille"`
	Sources  SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq" mapstructure:"rabbitmq"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures the shared HTTP fetcher.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// PDFConfig configures PDF text extraction.
type PDFConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// VeilleConfig configures the post-scrape pipeline.
type VeilleConfig struct {
	RecentDays int `yaml:"recent_days" mapstructure:"recent_days"`
}

// SourcesConfig groups the per-source scraper settings.
type SourcesConfig struct {
	HTML     HTMLSourceConfig     `yaml:"html" mapstructure:"html"`
	Gazette  GazetteSourceConfig  `yaml:"gazette" mapstructure:"gazette"`
	SIMAP    SIMAPSourceConfig    `yaml:"simap" mapstructure:"simap"`
	Bulletin BulletinSourceConfig `yaml:"bulletin" mapstructure:"bulletin"`
}

// HTMLSourceConfig configures the static cantonal page scraper(s).
// PagesFile, when set, points to a YAML list of pages that replaces the
// single inline page.
type HTMLSourceConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Canton          string `yaml:"canton" mapstructure:"canton"`
	URL             string `yaml:"url" mapstructure:"url"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Type            string `yaml:"type" mapstructure:"type"`
	CommuneFallback string `yaml:"commune_fallback" mapstructure:"commune_fallback"`
	PagesFile       string `yaml:"pages_file" mapstructure:"pages_file"`
}

// GazetteSourceConfig configures the PDF gazette scraper.
type GazetteSourceConfig struct {
	Enabled          bool   `yaml:"enabled" mapstructure:"enabled"`
	Canton           string `yaml:"canton" mapstructure:"canton"`
	LandingURL       string `yaml:"landing_url" mapstructure:"landing_url"`
	EditionURLFormat string `yaml:"edition_url_format" mapstructure:"edition_url_format"`
	MaxDocuments     int    `yaml:"max_documents" mapstructure:"max_documents"`
}

// SIMAPSourceConfig configures the SIMAP REST API scraper.
type SIMAPSourceConfig struct {
	Enabled   bool     `yaml:"enabled" mapstructure:"enabled"`
	BaseURL   string   `yaml:"base_url" mapstructure:"base_url"`
	DetailURL string   `yaml:"detail_url" mapstructure:"detail_url"`
	Cantons   []string `yaml:"cantons" mapstructure:"cantons"`
	PageSize  int      `yaml:"page_size" mapstructure:"page_size"`
	MaxPages  int      `yaml:"max_pages" mapstructure:"max_pages"`
}

// BulletinSourceConfig configures the JS-rendered bulletin scraper.
type BulletinSourceConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	Canton          string   `yaml:"canton" mapstructure:"canton"`
	ListingURL      string   `yaml:"listing_url" mapstructure:"listing_url"`
	BaseURL         string   `yaml:"base_url" mapstructure:"base_url"`
	ContentSelector string   `yaml:"content_selector" mapstructure:"content_selector"`
	MaxPages        int      `yaml:"max_pages" mapstructure:"max_pages"`
	WaitTimeoutSecs int      `yaml:"wait_timeout_secs" mapstructure:"wait_timeout_secs"`
	PageDelayMs     int      `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	ExcludeCategory []string `yaml:"exclude_categories" mapstructure:"exclude_categories"`
	ChromePath      string   `yaml:"chrome_path" mapstructure:"chrome_path"`
	Headless        bool     `yaml:"headless" mapstructure:"headless"`
}

// RabbitMQConfig configures new-publication notifications. An empty URL
// disables publishing.
type RabbitMQConfig struct {
	URL        string `yaml:"url" mapstructure:"url"`
	Exchange   string `yaml:"exchange" mapstructure:"exchange"`
	RoutingKey string `yaml:"routing_key" mapstructure:"routing_key"`
	Queue      string `yaml:"queue" mapstructure:"queue"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port                 int `yaml:"port" mapstructure:"port"`
	ScheduleIntervalMins int `yaml:"schedule_interval_mins" mapstructure:"schedule_interval_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. A .env file in the
// working directory, if present, is loaded into the environment first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VEILLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "veille.db")
	v.SetDefault("fetch.user_agent", "veille/1.0 (+https://www.simap.ch)")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("pdf.provider", "local")
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("pdf.mistral_model", "mistral-ocr-latest")
	v.SetDefault("veille.recent_days", 30)

	v.SetDefault("sources.html.enabled", true)
	v.SetDefault("sources.html.canton", "JU")
	v.SetDefault("sources.html.url", "https://www.jura.ch/fr/Autorites/Administration/DEE/ECO/Marches-publics.html")
	v.SetDefault("sources.html.base_url", "https://www.jura.ch")
	v.SetDefault("sources.html.type", "APPEL_DOFFRES")
	v.SetDefault("sources.html.commune_fallback", "Non spécifiée")

	v.SetDefault("sources.gazette.enabled", true)
	v.SetDefault("sources.gazette.canton", "FR")
	v.SetDefault("sources.gazette.landing_url", "https://fo.fr.ch/")
	v.SetDefault("sources.gazette.edition_url_format", "https://fo.fr.ch/sites/default/files/fo/%d/FO_%02d.pdf")
	v.SetDefault("sources.gazette.max_documents", 2)

	v.SetDefault("sources.simap.enabled", true)
	v.SetDefault("sources.simap.base_url", "https://www.simap.ch/api/publications/v2/project/project-search")
	v.SetDefault("sources.simap.detail_url", "https://www.simap.ch/fr/project-detail/%s")
	v.SetDefault("sources.simap.cantons", []string{"VD", "GE", "VS", "FR", "NE", "JU"})
	v.SetDefault("sources.simap.page_size", 20)
	v.SetDefault("sources.simap.max_pages", 5)

	v.SetDefault("sources.bulletin.enabled", true)
	v.SetDefault("sources.bulletin.canton", "VS")
	v.SetDefault("sources.bulletin.listing_url", "https://bulletin.vs.ch/publications?page=%d")
	v.SetDefault("sources.bulletin.base_url", "https://bulletin.vs.ch")
	v.SetDefault("sources.bulletin.content_selector", ".publication-card")
	v.SetDefault("sources.bulletin.max_pages", 3)
	v.SetDefault("sources.bulletin.wait_timeout_secs", 15)
	v.SetDefault("sources.bulletin.page_delay_ms", 2000)
	v.SetDefault("sources.bulletin.exclude_categories", []string{"appel d'offres", "marchés publics", "adjudication"})
	v.SetDefault("sources.bulletin.headless", true)

	v.SetDefault("rabbitmq.exchange", "veille")
	v.SetDefault("rabbitmq.routing_key", "publication.created")
	v.SetDefault("rabbitmq.queue", "veille.publications")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.schedule_interval_mins", 360)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. Scopes: "store",
// "sources", "server".
func (c *Config) Validate(scopes ...string) error {
	for _, scope := range scopes {
		switch scope {
		case "store":
			switch c.Store.Driver {
			case "sqlite", "postgres":
			default:
				return eris.Errorf("config: unknown store driver %q (valid: sqlite, postgres)", c.Store.Driver)
			}
			if c.Store.DatabaseURL == "" {
				return eris.New("config: store.database_url is required")
			}
		case "sources":
			if c.Veille.RecentDays <= 0 {
				return eris.Errorf("config: veille.recent_days must be positive, got %d", c.Veille.RecentDays)
			}
			if c.Sources.SIMAP.Enabled && c.Sources.SIMAP.PageSize <= 0 {
				return eris.New("config: sources.simap.page_size must be positive")
			}
			if c.Sources.Bulletin.Enabled && !strings.Contains(c.Sources.Bulletin.ListingURL, "%d") {
				return eris.New("config: sources.bulletin.listing_url must contain a %d page placeholder")
			}
		case "server":
			if c.Server.Port <= 0 {
				return eris.Errorf("config: invalid server.port %d", c.Server.Port)
			}
		default:
			return eris.Errorf("config: unknown validation scope %q", scope)
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
