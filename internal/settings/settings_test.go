package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestString(t *testing.T) {
	s := Settings{"key": "value", "empty": ""}

	if got := s.String("key", "default"); got != "value" {
		t.Errorf("String = %q, want %q", got, "value")
	}
	if got := s.String("missing", "default"); got != "default" {
		t.Errorf("String missing = %q, want %q", got, "default")
	}
	if got := s.String("empty", "default"); got != "default" {
		t.Errorf("String empty = %q, want %q", got, "default")
	}
}

func TestRequired(t *testing.T) {
	s := Settings{"bucket": "docs"}

	if v, err := s.Required("s3", "bucket"); err != nil || v != "docs" {
		t.Errorf("Required = %q, %v", v, err)
	}

	_, err := s.Required("s3", "region")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
	if cfgErr.Backend != "s3" || cfgErr.Field != "region" {
		t.Errorf("unexpected error fields: %+v", cfgErr)
	}
	if err.Error() != "s3: region: is required" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestBool(t *testing.T) {
	s := Settings{"yes": "YES", "no": "0", "bad": "maybe"}

	if v, err := s.Bool("yes", false); err != nil || !v {
		t.Errorf("Bool yes: got %v, %v", v, err)
	}
	if v, err := s.Bool("no", true); err != nil || v {
		t.Errorf("Bool no: got %v, %v", v, err)
	}
	if v, err := s.Bool("missing", true); err != nil || !v {
		t.Errorf("Bool missing: got %v, %v", v, err)
	}
	if _, err := s.Bool("bad", false); err == nil {
		t.Error("Bool bad: expected error")
	}
}

func TestInt(t *testing.T) {
	s := Settings{"num": "42", "bad": "abc"}

	if v, err := s.Int("num", 0); err != nil || v != 42 {
		t.Errorf("Int = %d, %v", v, err)
	}
	if v, err := s.Int("missing", 99); err != nil || v != 99 {
		t.Errorf("Int missing = %d, %v", v, err)
	}

	_, err := s.Int("bad", 0)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Cause == nil {
		t.Fatalf("expected ConfigError with cause, got %v", err)
	}
}

func TestDuration(t *testing.T) {
	s := Settings{"dur": "5s", "secs": "10", "bad": "abc"}

	if v, err := s.Duration("dur", 0); err != nil || v != 5*time.Second {
		t.Errorf("Duration = %v, %v", v, err)
	}
	if v, err := s.Duration("secs", 0); err != nil || v != 10*time.Second {
		t.Errorf("Duration secs = %v, %v", v, err)
	}
	if v, err := s.Duration("missing", time.Minute); err != nil || v != time.Minute {
		t.Errorf("Duration missing = %v, %v", v, err)
	}
	if _, err := s.Duration("bad", 0); err == nil {
		t.Error("Duration bad: expected error")
	}
}

func TestPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	s := Settings{"dir": "~/data"}
	if got := s.Path("dir", ""); got != filepath.Join(home, "data") {
		t.Errorf("Path = %q", got)
	}
	if got := s.Path("missing", "/tmp/x/../y"); got != "/tmp/y" {
		t.Errorf("Path default = %q", got)
	}
	if got := ExpandPath(""); got != "" {
		t.Errorf("ExpandPath empty = %q", got)
	}
}

func TestMerge(t *testing.T) {
	defaults := map[string]string{"a": "1", "b": "2"}
	overrides := map[string]string{"b": "3", "c": "4"}

	merged := Merge(defaults, overrides)
	if merged["a"] != "1" || merged["b"] != "3" || merged["c"] != "4" {
		t.Errorf("Merge = %v", merged)
	}
	if defaults["b"] != "2" {
		t.Error("Merge mutated defaults")
	}
	if got := strings.Join(merged.Keys(), ","); got != "a,b,c" {
		t.Errorf("Keys = %q", got)
	}
}

func TestConfigErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{&ConfigError{Backend: "redis", Message: "unreachable"}, "redis: unreachable"},
		{&ConfigError{Backend: "redis", Field: "db", Message: "must be set"}, "redis: db: must be set"},
		{&ConfigError{Field: "db", Value: "x", Message: "must be an integer"}, `config: db="x": must be an integer`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}

	wrapped := NewConfigErrorWithCause("sqlite", "path", "cannot open", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("expected cause to unwrap")
	}

	labelled := (&ConfigError{Field: "db", Message: "bad"}).WithBackend("redis")
	if labelled.Backend != "redis" {
		t.Errorf("WithBackend = %q", labelled.Backend)
	}
	if kept := NewConfigError("s3", "", "x").WithBackend("redis"); kept.Backend != "s3" {
		t.Errorf("WithBackend overwrote backend: %q", kept.Backend)
	}
}
