package main

import (
	"errors"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitview/internal/auth"
	"github.com/star/orbitview/internal/stream"
	"github.com/star/orbitview/internal/tle"
)

// catalogConfig controls where and how often the catalog is fetched.
type catalogConfig struct {
	SourceURL    string
	ExtraURLs    []string
	Interval     time.Duration
	FetchTimeout time.Duration
}

// viewConfig controls the session loop and the HTTP listener.
type viewConfig struct {
	Addr                string
	Workers             int
	FrameInterval       time.Duration
	TimeRate            float64
	TrackOnStart        bool
	TrajectoryCacheSize int
}

// envInt returns the positive integer in key, or def with a warning when the
// value is malformed.
func envInt(logger *slog.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

func envBool(logger *slog.Logger, key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("ORBITVIEW_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("ORBITVIEW_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("ORBITVIEW_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("ORBITVIEW_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadCatalogConfig(logger *slog.Logger) catalogConfig {
	cfg := catalogConfig{
		SourceURL:    tle.DefaultSourceURL,
		Interval:     time.Duration(envInt(logger, "ORBITVIEW_CATALOG_INTERVAL", int(tle.DefaultInterval.Seconds()))) * time.Second,
		FetchTimeout: time.Duration(envInt(logger, "ORBITVIEW_FETCH_TIMEOUT", 30)) * time.Second,
	}

	if v := os.Getenv("ORBITVIEW_CATALOG_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("ORBITVIEW_CATALOG_EXTRA_URLS"); v != "" {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.ExtraURLs = append(cfg.ExtraURLs, u)
			}
		}
	}

	logger.Info("catalog config",
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraURLs,
		"interval_seconds", cfg.Interval.Seconds(),
		"fetch_timeout_seconds", cfg.FetchTimeout.Seconds(),
	)
	return cfg
}

func loadViewConfig(logger *slog.Logger) viewConfig {
	cfg := viewConfig{
		Addr:                ":8080",
		Workers:             envInt(logger, "ORBITVIEW_REFRESH_WORKERS", runtime.NumCPU()),
		FrameInterval:       time.Duration(envInt(logger, "ORBITVIEW_FRAME_INTERVAL_MS", 250)) * time.Millisecond,
		TimeRate:            1,
		TrackOnStart:        envBool(logger, "ORBITVIEW_TRACK_ON_START", false),
		TrajectoryCacheSize: envInt(logger, "ORBITVIEW_TRAJECTORY_CACHE_SIZE", 64),
	}

	if v := os.Getenv("ORBITVIEW_HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}

	if v := os.Getenv("ORBITVIEW_TIME_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r == 0 {
			logger.Warn("invalid ORBITVIEW_TIME_RATE value, using default", "value", v, "default", 1)
		} else {
			cfg.TimeRate = r
		}
	}

	logger.Info("view config",
		"addr", cfg.Addr,
		"workers", cfg.Workers,
		"frame_interval_ms", cfg.FrameInterval.Milliseconds(),
		"time_rate", cfg.TimeRate,
		"track_on_start", cfg.TrackOnStart,
	)
	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: envInt(logger, "ORBITVIEW_STREAM_MAX_CONCURRENT", 10),
		MaxTotal:           envInt(logger, "ORBITVIEW_STREAM_MAX_TOTAL", 1000),
		KeepaliveInterval:  time.Duration(envInt(logger, "ORBITVIEW_STREAM_KEEPALIVE_INTERVAL", 30)) * time.Second,
		TrustProxy:         envBool(logger, "ORBITVIEW_TRUST_PROXY", false),
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_total", cfg.MaxTotal,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)
	return cfg
}
