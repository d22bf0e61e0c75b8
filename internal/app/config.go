package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/logger"
)

// Config holds application configuration.
type Config struct {
	// AppName is the display name
	AppName string

	// Platform selects the per-platform asset URLs of a bundle
	Platform domain.Platform

	// SampleRate is the audio output sample rate
	SampleRate int

	// UseMockAudio swaps the audio device for the in-memory player
	UseMockAudio bool

	// LogLevel controls logging verbosity
	LogLevel slog.Level

	// LogFormat is "text" or "json"
	LogFormat string

	// BundleDir holds the session bundle files
	BundleDir string

	// AssetDir holds bundled audio assets, including the pre-roll atmosphere
	AssetDir string

	// CacheDir receives downloaded assets
	CacheDir string

	// PrerollAsset is the identifier of the pre-roll atmosphere
	PrerollAsset string

	// WatchBundles reloads the current session when its bundle file changes
	WatchBundles bool

	// MetricsAddr serves /metrics when non-empty
	MetricsAddr string

	// CommandTimeout bounds every engine command (zero means no deadline)
	CommandTimeout time.Duration

	// DownloadTimeout bounds a single asset download
	DownloadTimeout time.Duration
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() Config {
	loggerCfg := logger.DefaultConfig()

	cacheDir := filepath.Join(os.TempDir(), "mantra")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "mantra")
	}

	return Config{
		AppName:         "Mantra",
		Platform:        defaultPlatform,
		SampleRate:      44100,
		LogLevel:        loggerCfg.Level,
		LogFormat:       loggerCfg.Format,
		BundleDir:       "bundles",
		AssetDir:        "assets",
		CacheDir:        cacheDir,
		PrerollAsset:    "preroll_atmosphere",
		WatchBundles:    true,
		DownloadTimeout: 30 * time.Second,
	}
}

// LoadFromEnv overrides cfg with the MANTRA_* environment variables that are set.
// Values that do not parse are ignored.
func LoadFromEnv(cfg Config) Config {
	if p, ok := domain.ParsePlatform(strings.ToLower(envStr("MANTRA_PLATFORM", ""))); ok {
		cfg.Platform = p
	}
	cfg.SampleRate = envInt("MANTRA_SAMPLE_RATE", cfg.SampleRate)
	cfg.UseMockAudio = envBool("MANTRA_MOCK_AUDIO", cfg.UseMockAudio)
	cfg.BundleDir = envStr("MANTRA_BUNDLE_DIR", cfg.BundleDir)
	cfg.AssetDir = envStr("MANTRA_ASSET_DIR", cfg.AssetDir)
	cfg.CacheDir = envStr("MANTRA_CACHE_DIR", cfg.CacheDir)
	cfg.PrerollAsset = envStr("MANTRA_PREROLL_ASSET", cfg.PrerollAsset)
	cfg.WatchBundles = envBool("MANTRA_WATCH_BUNDLES", cfg.WatchBundles)
	cfg.MetricsAddr = envStr("MANTRA_METRICS_ADDR", cfg.MetricsAddr)
	cfg.CommandTimeout = envDuration("MANTRA_COMMAND_TIMEOUT", cfg.CommandTimeout)
	cfg.DownloadTimeout = envDuration("MANTRA_DOWNLOAD_TIMEOUT", cfg.DownloadTimeout)
	return cfg
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(envStr(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(envStr(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(envStr(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := envStr(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// bare numbers are seconds
	if secs := envFloat(key, -1); secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
