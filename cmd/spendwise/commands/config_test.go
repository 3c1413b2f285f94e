package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/moneytrail/spendwise/internal/app"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

// runLoadConfig parses args with flags like the real commands and loads the config.
func runLoadConfig(t *testing.T, configPath string, env func() []string, args ...string) (*app.Config, error) {
	t.Helper()
	var (
		cfg     *app.Config
		loadErr error
	)
	cmd := &cli.Command{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api--base-url"},
			&cli.StringFlag{Name: "log-level"},
			&cli.IntFlag{Name: "server--port"},
			&cli.StringFlag{Name: "server--prefix"},
			&cli.DurationFlag{Name: "auth--refresh-timeout"},
			&cli.StringFlag{Name: "field"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, loadErr = loadConfig(configPath, cmd, env)
			return nil
		},
	}
	if err := cmd.Run(t.Context(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return cfg, loadErr
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spendwise.toml")
	toml := `
log_level = "debug"

[api]
base_url = "https://file.example/api"
timeout = "5s"

[auth]
storage = "memory"

[server]
port = 4200
`
	if err := os.WriteFile(path, []byte(toml), 0600); err != nil {
		t.Fatal(err)
	}

	env := environ(
		"SPENDWISE_API__BASE_URL=https://env.example/api",
		"SPENDWISE_AUTH__CSRF_COOKIE=xsrf",
		"UNRELATED=1",
	)

	cfg, err := runLoadConfig(t, path, env, "--api--base-url", "https://flag.example/api", "--field", "id")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.API.BaseURL != "https://flag.example/api" {
		t.Errorf("API.BaseURL = %q, flag should win", cfg.API.BaseURL)
	}
	if cfg.Auth.CSRFCookie != "xsrf" {
		t.Errorf("Auth.CSRFCookie = %q, want env value", cfg.Auth.CSRFCookie)
	}
	if cfg.API.Timeout != 5*time.Second || cfg.Server.Port != 4200 {
		t.Errorf("file values lost: timeout %v port %d", cfg.API.Timeout, cfg.Server.Port)
	}
	if cfg.LogLevel.String() != "DEBUG" {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Auth.RefreshTimeout != app.DefaultConfigRefreshTimeout {
		t.Errorf("Auth.RefreshTimeout = %v, want default", cfg.Auth.RefreshTimeout)
	}
}

func TestLoadConfigFlagTypes(t *testing.T) {
	cfg, err := runLoadConfig(t, "", environ("SPENDWISE_AUTH__STORAGE=memory"),
		"--server--port", "5000", "--server--prefix", "/v1", "--auth--refresh-timeout", "2s")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.Port != 5000 || cfg.Auth.RefreshTimeout != 2*time.Second {
		t.Errorf("port %d refresh timeout %v", cfg.Server.Port, cfg.Auth.RefreshTimeout)
	}
	if cfg.Server.Prefix != "/v1" {
		t.Errorf("prefix = %q, want /v1", cfg.Server.Prefix)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := runLoadConfig(t, "", environ("SPENDWISE_AUTH__STORAGE=memory", "SPENDWISE_LOG_FORMAT=xml"))
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("loadConfig() error = %v, want invalid config", err)
	}

	if _, err := runLoadConfig(t, filepath.Join(t.TempDir(), "missing.toml"), environ()); err == nil {
		t.Error("loadConfig() accepted a missing config file")
	}
}

func TestApplySets(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		sets    []string
		want    string
		wantErr bool
	}{
		{
			name: "strings and json values",
			sets: []string{"name=Groceries", "amount=12.5", "recurring=true", "date=2026-10-16"},
			want: `{"name":"Groceries","amount":12.5,"recurring":true,"date":"2026-10-16"}`,
		},
		{
			name: "overrides data",
			base: `{"id":"c1","name":"old"}`,
			sets: []string{"name=new"},
			want: `{"id":"c1","name":"new"}`,
		},
		{
			name: "nested path",
			sets: []string{"limits.monthly=100"},
			want: `{"limits":{"monthly":100}}`,
		},
		{name: "missing equals", sets: []string{"name"}, wantErr: true},
		{name: "invalid data", base: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applySets([]byte(tt.base), tt.sets)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applySets() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != tt.want {
				t.Errorf("applySets() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWithoutToken(t *testing.T) {
	got := withoutToken([]byte(`{"access_token":"secret","token_type":"bearer"}`))
	if string(got) != `{"token_type":"bearer"}` {
		t.Errorf("withoutToken() = %s", got)
	}
}

func TestReadLine(t *testing.T) {
	if got, err := readLine(strings.NewReader("hunter2\r\nignored\n")); err != nil || got != "hunter2" {
		t.Errorf("readLine() = %q, %v", got, err)
	}
	if got, err := readLine(strings.NewReader("no-newline")); err != nil || got != "no-newline" {
		t.Errorf("readLine() = %q, %v", got, err)
	}
	if _, err := readLine(strings.NewReader("")); err == nil {
		t.Error("readLine() accepted empty input")
	}
}
