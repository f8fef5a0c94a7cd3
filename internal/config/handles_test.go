package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRegistry(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadHandleRegistry_ReadsInitialEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handles.yaml")
	writeRegistry(t, path, `
handles:
  - id: "wh1"
    family: "webhook"
    outboundUrl: "https://hooks.example.com/a"
    enabled: true
  - id: "bot1"
    family: "bot"
    outboundUrl: "https://api.telegram.org"
    enabled: true
  - id: "wh2-disabled"
    family: "webhook"
    outboundUrl: "https://hooks.example.com/b"
    enabled: false
allowedHosts:
  - "*.example.com"
`)

	reg, err := LoadHandleRegistry(path)
	if err != nil {
		t.Fatalf("LoadHandleRegistry: %v", err)
	}
	defer reg.Close()

	webhooks := reg.Handles("webhook")
	if len(webhooks) != 1 || webhooks[0].ID != "wh1" {
		t.Errorf("Handles(webhook) = %+v, want only wh1 (disabled entry excluded)", webhooks)
	}

	bots := reg.Handles("bot")
	if len(bots) != 1 || bots[0].ID != "bot1" {
		t.Errorf("Handles(bot) = %+v", bots)
	}

	if !reg.IsAllowedHost("hooks.example.com") {
		t.Error("expected hooks.example.com to match *.example.com")
	}
	if reg.IsAllowedHost("evil.test") {
		t.Error("expected evil.test to be rejected")
	}
}

func TestLoadHandleRegistry_EmptyPathIsNoop(t *testing.T) {
	reg, err := LoadHandleRegistry("")
	if err != nil {
		t.Fatalf("LoadHandleRegistry(\"\"): %v", err)
	}
	if len(reg.Handles("webhook")) != 0 {
		t.Error("expected no handles for an unconfigured registry")
	}
	if !reg.IsAllowedHost("anything.test") {
		t.Error("expected permissive default with no allowlist configured")
	}
}

func TestHandleRegistry_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handles.yaml")
	writeRegistry(t, path, `
handles:
  - id: "wh1"
    family: "webhook"
    outboundUrl: "https://hooks.example.com/a"
    enabled: true
`)

	reg, err := LoadHandleRegistry(path)
	if err != nil {
		t.Fatalf("LoadHandleRegistry: %v", err)
	}
	defer reg.Close()

	writeRegistry(t, path, `
handles:
  - id: "wh1"
    family: "webhook"
    outboundUrl: "https://hooks.example.com/a"
    enabled: true
  - id: "wh2"
    family: "webhook"
    outboundUrl: "https://hooks.example.com/b"
    enabled: true
`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(reg.Handles("webhook")) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("registry did not pick up the updated file within the deadline, got %d handles", len(reg.Handles("webhook")))
}
