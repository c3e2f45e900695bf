package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Harvest HarvestConfig `yaml:"harvest" mapstructure:"harvest"`
	Claro   PortalConfig  `yaml:"claro" mapstructure:"claro"`
	Vivo    PortalConfig  `yaml:"vivo" mapstructure:"vivo"`
	OCR     OCRConfig     `yaml:"ocr" mapstructure:"ocr"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// HarvestConfig configures the download traversal shared by all portals.
type HarvestConfig struct {
	// DownloadRoot is where finished invoices, failure ledgers, and run
	// reports live, organized per operator.
	DownloadRoot string `yaml:"download_root" mapstructure:"download_root"`
	// StagingDir is the browser's download directory, watched for arrivals.
	StagingDir          string  `yaml:"staging_dir" mapstructure:"staging_dir"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryRounds         int     `yaml:"retry_rounds" mapstructure:"retry_rounds"`
	DownloadTimeoutSecs int     `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
	ActionsPerSecond    float64 `yaml:"actions_per_second" mapstructure:"actions_per_second"`
}

// PortalConfig holds one operator portal's access settings.
type PortalConfig struct {
	LoginURL   string `yaml:"login_url" mapstructure:"login_url"`
	ListingURL string `yaml:"listing_url" mapstructure:"listing_url"`
	Username   string `yaml:"username" mapstructure:"username"`
	Password   string `yaml:"password" mapstructure:"password"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ExtractConfig configures the batch re-extraction command.
type ExtractConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the fields required by the given run mode are set.
// Modes: "harvest-claro", "harvest-vivo", "extract", "migrate".
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}
	requirePortal := func(name string, p PortalConfig) {
		if p.LoginURL == "" {
			missing = append(missing, name+".login_url is required")
		}
		if p.Username == "" {
			missing = append(missing, name+".username is required")
		}
		if p.Password == "" {
			missing = append(missing, name+".password is required")
		}
	}

	switch mode {
	case "harvest-claro":
		requireStore()
		requirePortal("claro", c.Claro)
	case "harvest-vivo":
		requireStore()
		requirePortal("vivo", c.Vivo)
	case "extract":
		requireStore()
		if c.Extract.Workers < 1 || c.Extract.Workers > 32 {
			missing = append(missing, "extract.workers must be between 1 and 32")
		}
	case "migrate":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "harvest-claro" || mode == "harvest-vivo" {
		if c.Harvest.MaxAttempts < 1 {
			missing = append(missing, "harvest.max_attempts must be >= 1")
		}
		if c.Harvest.RetryRounds < 0 {
			missing = append(missing, "harvest.retry_rounds must be >= 0")
		}
		if c.Harvest.ActionsPerSecond <= 0 {
			missing = append(missing, "harvest.actions_per_second must be > 0")
		}
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FATURAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("harvest.download_root", "faturas")
	v.SetDefault("harvest.staging_dir", "/tmp/faturas-staging")
	v.SetDefault("harvest.max_attempts", 3)
	v.SetDefault("harvest.retry_rounds", 3)
	v.SetDefault("harvest.download_timeout_secs", 60)
	v.SetDefault("harvest.actions_per_second", 2.0)
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("extract.workers", 4)

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
