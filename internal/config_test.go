package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgconfig "github.com/starford/shortwatch/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestConfig_NoIngestionPath(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.History.Enabled = false
	cfg.Sidecar.Enabled = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("config without history or sidecar should fail")
	}
}

func TestHistoryConfig_PathOrBrowser(t *testing.T) {
	cfg := NewDefaultConfig().History
	cfg.Browser = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("history without path or browser should fail")
	}
	cfg.Path = "/tmp/History"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("explicit path should pass: %v", err)
	}
	p, err := cfg.ResolvePath()
	if err != nil || p != "/tmp/History" {
		t.Errorf("ResolvePath = %q, %v", p, err)
	}
}

func TestHistoryConfig_DisabledSkipsValidation(t *testing.T) {
	cfg := HistoryConfig{Enabled: false, Mode: "bogus"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled history should not be validated: %v", err)
	}
}

func TestHistoryConfig_InvalidMode(t *testing.T) {
	cfg := NewDefaultConfig().History
	cfg.Mode = "newest"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown query mode should fail")
	}
}

func TestConfig_AnalyzeModeNeedsBaseURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enrich.Mode = "analyze"
	if err := cfg.Validate(); err == nil {
		t.Fatal("analyze mode without base_url should fail")
	}
	cfg.Analyzer.BaseURL = "http://localhost:9000"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("analyze mode with base_url should pass: %v", err)
	}
}

func TestEnrichConfig_CaptionsNeedScript(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enrich.Captions.Enabled = true
	err := cfg.Validate()
	if err == nil {
		t.Fatal("captions without script should fail")
	}
	if !strings.Contains(err.Error(), "enrich") {
		t.Errorf("error should name the section: %v", err)
	}
}

func TestSidecarConfig(t *testing.T) {
	cfg := SidecarConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled sidecar without command should fail")
	}
	cfg.Command = "./scanner"
	cfg.Classifier = "regex"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown classifier should fail")
	}
	cfg.Classifier = "detected"
	cfg.Stdin = "pipe"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown stdin mode should fail")
	}
	cfg.Stdin = StdinInherit
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid sidecar config should pass: %v", err)
	}
}

func TestHTTPConfig_PortZeroDisables(t *testing.T) {
	cfg := HTTPConfig{Port: 0}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("port 0 should pass: %v", err)
	}
	if cfg.Enabled() {
		t.Error("port 0 should disable the server")
	}
}

func TestShippedConfig_CaptionsScriptExists(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(filepath.Join("..", "config", "config.yaml"), cfg); err != nil {
		t.Fatalf("shipped config: %v", err)
	}
	script := filepath.Join("..", cfg.Enrich.Captions.Script)
	info, err := os.Stat(script)
	if err != nil {
		t.Fatalf("captions script %q: %v", cfg.Enrich.Captions.Script, err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("captions script %q is not executable", script)
	}
}
