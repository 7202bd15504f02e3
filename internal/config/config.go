package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/dochighlight/internal/layout"
	"github.com/dgallion1/dochighlight/internal/raster"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Upload limits
	MaxUploadBytes int64

	// Layout
	Layout        layout.Options
	RenderWidth   float64
	SnapshotWidth int

	// Overview scrollbar
	OverviewWidth  float64
	OverviewHeight float64

	// View state
	ViewTTL         time.Duration
	CleanupInterval time.Duration
	StatsWindow     time.Duration

	// Entity type wiki
	TaxonomyURL         string
	TaxonomyIndexPath   string
	TaxonomyConcurrency int
	TaxonomyCacheTTL    time.Duration

	LogLevel string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first; exported variables take precedence.
func Load() Config {
	godotenv.Load()

	def := layout.DefaultOptions()
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("API_KEY"),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		Layout: layout.Options{
			MarginChunk:         envMargin("MARGIN_CHUNK", def.MarginChunk),
			MarginImage:         envMargin("MARGIN_IMAGE", def.MarginImage),
			BorderWidth:         envFloat("BORDER_WIDTH", def.BorderWidth),
			SelectedBorderWidth: envFloat("SELECTED_BORDER_WIDTH", def.SelectedBorderWidth),
			HoverColor:          envOr("HOVER_COLOR", def.HoverColor),
			SelectedColor:       envOr("SELECTED_COLOR", def.SelectedColor),
			PreSort:             envBool("LAYOUT_PRESORT", def.PreSort),
		},
		RenderWidth:   envFloat("RENDER_WIDTH", 1224),
		SnapshotWidth: envInt("SNAPSHOT_WIDTH", 800),

		OverviewWidth:  envFloat("OVERVIEW_WIDTH", 16),
		OverviewHeight: envFloat("OVERVIEW_HEIGHT", 800),

		ViewTTL:         envDuration("VIEW_TTL", 2*time.Hour),
		CleanupInterval: envDuration("CLEANUP_INTERVAL", 5*time.Minute),
		StatsWindow:     envDuration("STATS_WINDOW", 1*time.Hour),

		TaxonomyURL:         envOr("TAXONOMY_URL", "https://wiki.dataseer.ai"),
		TaxonomyIndexPath:   envOr("TAXONOMY_INDEX_PATH", "/doku.php?id=data_type"),
		TaxonomyConcurrency: envInt("TAXONOMY_CONCURRENCY", 4),
		TaxonomyCacheTTL:    envDuration("TAXONOMY_CACHE_TTL", 24*time.Hour),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.SnapshotWidth < 0 {
		cfg.SnapshotWidth = 0
	}
	if cfg.ViewTTL <= 0 {
		cfg.ViewTTL = 2 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 1 * time.Hour
	}
	if cfg.TaxonomyConcurrency <= 0 {
		cfg.TaxonomyConcurrency = 4
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	if _, err := raster.ParseColor(c.Layout.HoverColor); err != nil {
		return fmt.Errorf("HOVER_COLOR: %w", err)
	}
	if _, err := raster.ParseColor(c.Layout.SelectedColor); err != nil {
		return fmt.Errorf("SELECTED_COLOR: %w", err)
	}
	if c.RenderWidth <= 0 {
		return fmt.Errorf("RENDER_WIDTH must be positive")
	}
	if c.OverviewWidth < 0 || c.OverviewHeight <= 0 {
		return fmt.Errorf("OVERVIEW_HEIGHT must be positive and OVERVIEW_WIDTH non-negative")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envMargin accepts one value for every side or four comma separated values
// in top,left,bottom,right order.
func envMargin(key string, fallback layout.Margin) layout.Margin {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fallback
		}
		vals[i] = f
	}
	switch len(vals) {
	case 1:
		return layout.UniformMargin(vals[0])
	case 4:
		return layout.Margin{Top: vals[0], Left: vals[1], Bottom: vals[2], Right: vals[3]}
	}
	return fallback
}
