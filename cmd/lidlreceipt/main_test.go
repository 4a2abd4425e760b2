package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/lidlreceipt/internal/app"
)

const receiptHTML = `<pre><span id="purchase_list_line_1" class="article" data-art-id="1">Lait demi-écrémé      0,99 A</span></pre>`

func TestRun_WritesOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ticket.html")
	out := filepath.Join(dir, "ticket.json")
	if err := os.WriteFile(in, []byte(receiptHTML), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfg := app.Config{Inputs: []string{in}, OutputPath: out, Date: "2024-05-17T10:42:00"}
	if err := run(context.Background(), cfg, runOptions{}); err != nil {
		t.Fatalf("run error: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(b), "Lait demi-écrémé") || !strings.Contains(string(b), `"0,99"`) {
		t.Fatalf("unexpected output: %s", b)
	}
}

func TestRun_NoReceiptsMapsToExitCode2(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "empty.html")
	if err := os.WriteFile(in, nil, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	err := run(context.Background(), app.Config{Inputs: []string{in}, OutputPath: filepath.Join(dir, "o.json")}, runOptions{})
	if !errors.Is(err, app.ErrNoReceipts) {
		t.Fatalf("expected ErrNoReceipts, got %v", err)
	}
	if exitCode(err) != 2 {
		t.Fatalf("expected exit code 2")
	}
	if exitCode(fmt.Errorf("wrapped: %w", errors.New("other"))) != 1 {
		t.Fatalf("expected exit code 1 for other errors")
	}
}

func TestParseFlags_PrecedenceFlagsEnvFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "c.yaml")
	content := "inputs: [from-file.html]\noutput: file.json\nfetch:\n  token: file-token\n  language: de-DE\narchive: file.db\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RECEIPT_TOKEN", "env-token")
	t.Setenv("RECEIPT_LANGUAGE", "")
	t.Setenv("RECEIPT_CONFIG", "")
	t.Setenv("ARCHIVE_PATH", "")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, _, err := parseFlags(fs, []string{"-config", cfgPath, "-archive", "flag.db"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Inputs) != 1 || cfg.Inputs[0] != "from-file.html" {
		t.Fatalf("expected inputs from file, got %v", cfg.Inputs)
	}
	if cfg.OutputPath != "file.json" || cfg.AcceptLanguage != "de-DE" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Token != "env-token" {
		t.Fatalf("env should beat file, got %q", cfg.Token)
	}
	if cfg.ArchivePath != "flag.db" {
		t.Fatalf("flag should beat file, got %q", cfg.ArchivePath)
	}
}

func TestParseFlags_InputsAndValidation(t *testing.T) {
	t.Setenv("RECEIPT_CONFIG", "")
	t.Setenv("ARCHIVE_PATH", "")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, _, err := parseFlags(fs, []string{"-input", "a.html,b.html", "-input", "c.html", "d.html"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if strings.Join(cfg.Inputs, " ") != "a.html b.html c.html d.html" {
		t.Fatalf("unexpected inputs: %v", cfg.Inputs)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	if _, _, err := parseFlags(fs, nil); err == nil {
		t.Fatalf("expected validation error without inputs")
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	if _, _, err := parseFlags(fs, []string{"-archive.list"}); err == nil {
		t.Fatalf("expected error for -archive.list without -archive")
	}
}

func TestParseFlags_VersionSkipsValidation(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	_, opts, err := parseFlags(fs, []string{"-version"})
	if err != nil || !opts.version {
		t.Fatalf("expected version flag without error, got %+v %v", opts, err)
	}
	if !strings.HasPrefix(app.VersionString(), "lidlreceipt ") {
		t.Fatalf("unexpected version string %q", app.VersionString())
	}
}
