package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/parley/internal/config"
)

const minimalProviders = `
providers:
  stt: {name: openai}
  llm: {name: openai}
  tts: {name: openai}
`

func TestValidate_RequiresCoreProviders(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: info\n"))
	if err == nil {
		t.Fatal("expected error without providers, got nil")
	}
	for _, key := range []string{"providers.stt", "providers.llm", "providers.tts"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s, got: %v", key, err)
		}
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\n",
			want: "server.log_level",
		},
		{
			name: "bad codec",
			yaml: "audio:\n  codec: mp3\n",
			want: "audio.codec",
		},
		{
			name: "negative debounce",
			yaml: "audio:\n  debounce: -1s\n",
			want: "must not be negative",
		},
		{
			name: "bad quota backend",
			yaml: "quota:\n  backend: sqlite\n",
			want: "quota.backend",
		},
		{
			name: "postgres needs dsn",
			yaml: "quota:\n  backend: postgres\n",
			want: "quota.dsn",
		},
		{
			name: "redis needs url",
			yaml: "quota:\n  backend: redis\n",
			want: "quota.url",
		},
		{
			name: "negative minutes",
			yaml: "quota:\n  default_minutes: -5\n",
			want: "quota.default_minutes",
		},
		{
			name: "temperature out of range",
			yaml: "interview:\n  temperature: 3.5\n",
			want: "interview.temperature",
		},
		{
			name: "empty alternate voice",
			yaml: "interview:\n  alternate_voices: [\"ok\", \" \"]\n",
			want: "interview.alternate_voices[1]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(minimalProviders + tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := minimalProviders + `
server:
  log_level: loud
quota:
  backend: sqlite
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "server.log_level") || !strings.Contains(err.Error(), "quota.backend") {
		t.Errorf("both problems should be reported, got: %v", err)
	}
}

func TestValidate_UnknownProviderNameIsOnlyAWarning(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt: {name: my-own-stt}
  llm: {name: openai}
  tts: {name: openai}
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should not fail validation: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	writeFile(t, path, minimalProviders+"quota:\n  default_minutes: 7\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Quota.DefaultMinutes != 7 {
		t.Errorf("default_minutes: got %d, want 7", cfg.Quota.DefaultMinutes)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "PARLEY_TEST_DOTENV=from-file\n")
	t.Setenv("PARLEY_TEST_DOTENV", "")
	os.Unsetenv("PARLEY_TEST_DOTENV")

	if err := config.LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("PARLEY_TEST_DOTENV"); got != "from-file" {
		t.Errorf("PARLEY_TEST_DOTENV: got %q, want %q", got, "from-file")
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "PARLEY_TEST_DOTENV_KEEP=from-file\n")
	t.Setenv("PARLEY_TEST_DOTENV_KEEP", "from-shell")

	if err := config.LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("PARLEY_TEST_DOTENV_KEEP"); got != "from-shell" {
		t.Errorf("got %q, want the shell value", got)
	}
}

func TestLoadDotEnv_MissingFileIsIgnored(t *testing.T) {
	t.Parallel()
	if err := config.LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
	if err := config.LoadDotEnv(""); err != nil {
		t.Errorf("empty path should be ignored, got %v", err)
	}
}
