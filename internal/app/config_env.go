package app

import (
	"os"
	"strings"
	"time"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file is applied so env beats file; the CLI
// then restores explicit flags, which beat both.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Token, "RECEIPT_TOKEN")
	override(&cfg.Date, "RECEIPT_DATE")
	override(&cfg.AcceptLanguage, "RECEIPT_LANGUAGE")
	override(&cfg.CacheDir, "CACHE_DIR")
	override(&cfg.ArchivePath, "ARCHIVE_PATH")

	if d, ok := envDuration("CACHE_MAX_AGE"); ok {
		cfg.CacheMaxAge = d
	}
	for key, dst := range map[string]*bool{
		"CACHE_CLEAR":        &cfg.CacheClear,
		"CACHE_STRICT_PERMS": &cfg.CacheStrictPerms,
		"VERBOSE":            &cfg.Verbose,
	} {
		if v, ok := envBool(key); ok {
			*dst = v
		}
	}
}

func envDuration(key string) (time.Duration, bool) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}

func envBool(key string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
