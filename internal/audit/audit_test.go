package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("EMBEDDING_API_KEY", "sk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("QDRANT_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("PDF_BACKEND", "mupdf"); got != "mupdf" {
		t.Errorf("expected 'mupdf', got %q", got)
	}
	if got := SanitiseKey("EMBEDDING_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/docrank.yaml"); got != "/tmp/docrank.yaml" {
		t.Errorf("expected '/tmp/docrank.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.docrank/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.docrank/config.yaml" {
			t.Errorf("expected '~/.docrank/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-very-secret")
	t.Setenv("PDF_BACKEND", "native")

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	LogCommandStart(log, "run", "")

	out := buf.String()
	if strings.Contains(out, "sk-very-secret") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	if !strings.Contains(out, "OPENAI_API_KEY=set") {
		t.Errorf("expected OPENAI_API_KEY=set in %s", out)
	}
	if !strings.Contains(out, "PDF_BACKEND=native") {
		t.Errorf("expected PDF_BACKEND=native in %s", out)
	}
	if !strings.Contains(out, "command=run") {
		t.Errorf("expected command=run in %s", out)
	}
}
