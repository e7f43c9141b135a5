// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const AppVersion = "1.4.0"

type Config struct {
	Port               string
	ModelPath          string
	ScalerPath         string
	AllowedOrigins     []string
	LookupTimeout      time.Duration
	AnalysisTimeout    time.Duration
	MaxConcurrent      int
	ContentFetch       bool
	GeoIPASNDB         string
	RedisURL           string
	OpenPhish          bool
	LogFormat          string
	RateLimitPerMinute int
	AppVersion         string
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding ones already set. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	modelPath := os.Getenv("MODEL_PATH")
	if modelPath == "" {
		return nil, fmt.Errorf("MODEL_PATH environment variable is required")
	}

	scalerPath := os.Getenv("SCALER_PATH")
	if scalerPath == "" {
		return nil, fmt.Errorf("SCALER_PATH environment variable is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	origins := []string{"http://localhost:3000"}
	if env := os.Getenv("ALLOWED_ORIGINS"); env != "" {
		origins = origins[:0]
		for _, o := range strings.Split(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	lookupTimeout, err := durationEnv("LOOKUP_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	analysisTimeout, err := durationEnv("ANALYSIS_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}
	maxConcurrent, err := intEnv("MAX_CONCURRENT", 6)
	if err != nil {
		return nil, err
	}
	rateLimit, err := intEnv("RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return nil, err
	}
	contentFetch, err := switchEnv("CONTENT_FETCH", false)
	if err != nil {
		return nil, err
	}
	openPhish, err := switchEnv("OPENPHISH", true)
	if err != nil {
		return nil, err
	}

	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	switch logFormat {
	case "":
		logFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", logFormat)
	}

	return &Config{
		Port:               port,
		ModelPath:          modelPath,
		ScalerPath:         scalerPath,
		AllowedOrigins:     origins,
		LookupTimeout:      lookupTimeout,
		AnalysisTimeout:    analysisTimeout,
		MaxConcurrent:      maxConcurrent,
		ContentFetch:       contentFetch,
		GeoIPASNDB:         os.Getenv("GEOIP_ASN_DB"),
		RedisURL:           os.Getenv("REDIS_URL"),
		OpenPhish:          openPhish,
		LogFormat:          logFormat,
		RateLimitPerMinute: rateLimit,
		AppVersion:         AppVersion,
	}, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare numbers are seconds
		secs, nerr := strconv.Atoi(v)
		if nerr != nil {
			return 0, fmt.Errorf("%s: invalid duration %q", key, v)
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func switchEnv(key string, def bool) (bool, error) {
	switch strings.ToLower(os.Getenv(key)) {
	case "":
		return def, nil
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be on or off, got %q", key, os.Getenv(key))
	}
}
