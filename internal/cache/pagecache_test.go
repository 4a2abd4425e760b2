package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPageCache_SaveAndLoad(t *testing.T) {
	t.Parallel()
	c := &PageCache{Dir: t.TempDir()}
	url := "https://tickets.example.com/receipt/42"
	if err := c.Save(context.Background(), url, "text/html", `"e1"`, "Mon, 01 Jan 2024 00:00:00 GMT", []byte("<html>r</html>")); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta, err := c.LoadMeta(context.Background(), url)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.URL != url || meta.ETag != `"e1"` || meta.ContentType != "text/html" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	body, err := c.LoadBody(context.Background(), url)
	if err != nil || string(body) != "<html>r</html>" {
		t.Fatalf("unexpected body %q (%v)", body, err)
	}
	if _, err := c.LoadBody(context.Background(), "https://tickets.example.com/other"); err == nil {
		t.Fatalf("expected miss for unknown url")
	}
}

func TestPageCache_StrictPerms(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "pages")
	c := &PageCache{Dir: dir, StrictPerms: true}
	url := "https://tickets.example.com/receipt/1"
	if err := c.Save(context.Background(), url, "text/html", "", "", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if info.Mode()&0o777 != 0o700 {
		t.Fatalf("expected 0700 dir, got %o", info.Mode()&0o777)
	}
	finfo, err := os.Stat(filepath.Join(dir, Key(url)+bodySuffix))
	if err != nil {
		t.Fatalf("stat body: %v", err)
	}
	if finfo.Mode()&0o777 != 0o600 {
		t.Fatalf("expected 0600 body, got %o", finfo.Mode()&0o777)
	}
}

func TestPurgeByAge(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := &PageCache{Dir: dir}
	fresh := "https://tickets.example.com/fresh"
	stale := "https://tickets.example.com/stale"
	for _, u := range []string{fresh, stale} {
		if err := c.Save(context.Background(), u, "text/html", "", "", []byte(u)); err != nil {
			t.Fatalf("save %s: %v", u, err)
		}
	}
	// Backdate the stale entry.
	metaPath := filepath.Join(dir, Key(stale)+metaSuffix)
	old := PageEntry{URL: stale, SavedAt: time.Now().UTC().Add(-48 * time.Hour)}
	b, _ := json.Marshal(old)
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	removed, err := PurgeByAge(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := c.LoadBody(context.Background(), stale); err == nil {
		t.Fatalf("expected stale body removed")
	}
	if _, err := c.LoadBody(context.Background(), fresh); err != nil {
		t.Fatalf("expected fresh body kept: %v", err)
	}
}

func TestPurgeByAge_MissingDir(t *testing.T) {
	n, err := PurgeByAge(filepath.Join(t.TempDir(), "nope"), time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d %v", n, err)
	}
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.html"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ClearDir(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, got %d entries", len(entries))
	}
	if err := ClearDir("  "); err == nil {
		t.Fatalf("expected error for blank dir")
	}
}
