package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
	// Inputs are receipt sources: local HTML files or http(s) URLs.
	Inputs     []string
	OutputPath string
	PDFPath    string

	// Date is passed through to every extracted receipt. Empty means the time
	// of the run.
	Date string

	// Fetching
	Token          string
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	// ArchivePath enables the bbolt receipt archive when set.
	ArchivePath string

	Verbose bool
}
