package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/lidlreceipt/internal/archive"
	"github.com/hyperifyio/lidlreceipt/internal/cache"
	"github.com/hyperifyio/lidlreceipt/internal/fetch"
	"github.com/hyperifyio/lidlreceipt/internal/receipt"
)

// ReceiptDateLayout matches the purchase date format of the loyalty app.
const ReceiptDateLayout = "2006-01-02T15:04:05"

// ErrNoReceipts is returned when none of the inputs produced a receipt.
var ErrNoReceipts = errors.New("no receipts extracted")

type App struct {
	cfg       Config
	extractor receipt.Extractor
	pages     pageGetter
	archive   *archive.Store
	stdout    io.Writer
	now       func() time.Time
}

// pageGetter abstracts remote page retrieval for tests.
type pageGetter interface {
	get(ctx context.Context, url string) ([]byte, string, error)
}

func New(_ context.Context, cfg Config) (*App, error) {
	a := &App{
		cfg:       cfg,
		extractor: receipt.HTMLExtractor{},
		stdout:    os.Stdout,
		now:       time.Now,
	}

	var pageCache *cache.PageCache
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("purged stale cache entries")
			}
		}
		pageCache = &cache.PageCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	a.pages = &fetchClient{client: &fetch.Client{
		HTTPClient:        newHTTPClient(timeout),
		UserAgent:         pickNonEmpty(cfg.UserAgent, DefaultUserAgent),
		Token:             cfg.Token,
		AcceptLanguage:    cfg.AcceptLanguage,
		MaxAttempts:       3,
		PerRequestTimeout: timeout,
		Cache:             pageCache,
		RedirectMaxHops:   5,
		MaxConcurrent:     4,
	}}

	if cfg.ArchivePath != "" {
		store, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return nil, err
		}
		a.archive = store
	}
	return a, nil
}

func (a *App) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			log.Warn().Err(err).Msg("archive close failed")
		}
	}
}

// Run extracts every input and writes the JSON (and optional PDF) output.
// A failing input is logged and skipped; only when nothing could be
// extracted does Run return ErrNoReceipts.
func (a *App) Run(ctx context.Context) error {
	date := a.cfg.Date
	if strings.TrimSpace(date) == "" {
		date = a.now().Format(ReceiptDateLayout)
	}

	receipts := make([]*receipt.Receipt, 0, len(a.cfg.Inputs))
	for _, in := range a.cfg.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, contentType, err := a.load(ctx, in)
		if err != nil {
			log.Warn().Err(err).Str("input", in).Msg("load failed; skipping input")
			continue
		}
		r, err := a.extractor.Extract(date, body, contentType)
		if err != nil {
			log.Warn().Err(err).Str("input", in).Msg("extract failed; skipping input")
			continue
		}
		log.Info().Str("input", in).Int("items", len(r.Items)).Msg("extracted receipt")
		if a.archive != nil {
			rec := archive.Record{ID: receiptID(in), Source: in, ExtractedAt: a.now().UTC(), Receipt: r}
			if err := a.archive.Save(rec); err != nil {
				log.Warn().Err(err).Str("id", rec.ID).Msg("archive save failed")
			}
		}
		receipts = append(receipts, r)
	}
	if len(receipts) == 0 {
		return ErrNoReceipts
	}

	var payload any = receipts
	if len(receipts) == 1 {
		payload = receipts[0]
	}
	if err := a.writeJSON(payload); err != nil {
		return err
	}
	if a.cfg.PDFPath != "" {
		if err := writeReceiptPDF(receipts, a.cfg.PDFPath); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		log.Info().Str("out", a.cfg.PDFPath).Msg("wrote pdf")
	}
	return nil
}

// ListArchive writes every archived record as a JSON array.
func (a *App) ListArchive() error {
	if a.archive == nil {
		return errors.New("archive not configured")
	}
	records, err := a.archive.List()
	if err != nil {
		return fmt.Errorf("list archive: %w", err)
	}
	return a.writeJSON(records)
}

func (a *App) writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	data = append(data, '\n')
	out := a.cfg.OutputPath
	if out == "" || out == DefaultOutput {
		_, err := a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().Str("out", out).Msg("wrote output")
	return nil
}

func (a *App) load(ctx context.Context, in string) ([]byte, string, error) {
	if isRemote(in) {
		return a.pages.get(ctx, in)
	}
	b, err := os.ReadFile(in)
	if err != nil {
		return nil, "", fmt.Errorf("read input: %w", err)
	}
	return b, "", nil
}

func isRemote(in string) bool {
	l := strings.ToLower(in)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// receiptID derives a stable archive key: a readable stem (file stem or last
// URL segment) plus a short digest of the full source, so inputs that share a
// stem do not replace each other.
func receiptID(in string) string {
	source := in
	stem := ""
	if isRemote(in) {
		if u, err := url.Parse(in); err == nil {
			if seg := path.Base(strings.TrimRight(u.Path, "/")); seg != "." && seg != "/" {
				stem = seg
			}
		}
	} else {
		if abs, err := filepath.Abs(in); err == nil {
			source = abs
		}
		base := filepath.Base(in)
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}
	sum := cache.Key(source)
	if stem == "" {
		return sum[:12]
	}
	return stem + "-" + sum[:8]
}

// fetchClient adapts fetch.Client to pageGetter.
type fetchClient struct {
	client *fetch.Client
}

func (f *fetchClient) get(ctx context.Context, url string) ([]byte, string, error) {
	if f == nil || f.client == nil {
		return nil, "", errors.New("fetch client not configured")
	}
	return f.client.Get(ctx, url)
}

func pickNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
