package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/displaylog/internal/ingest"
)

func TestLoadConfig_Defaults(t *testing.T) {
	resetDisplaylogEnv(t)

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.MaxEntries != 100 {
		t.Fatalf("MaxEntries = %d, want 100", cfg.MaxEntries)
	}
	if cfg.policy() != ingest.PolicyPartial {
		t.Fatalf("policy = %q, want partial", cfg.policy())
	}
	if cfg.SerializeWrites {
		t.Fatal("SerializeWrites should default to false")
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q, want 0.0.0.0:8080", cfg.HTTPAddr)
	}
	if !strings.HasSuffix(cfg.LogPath, filepath.Join("displaylog", "log.xml")) {
		t.Fatalf("LogPath = %q", cfg.LogPath)
	}
	if cfg.ConfigPath != "" {
		t.Fatalf("ConfigPath = %q, want empty for a missing file", cfg.ConfigPath)
	}
	if cfg.BackupEnabled {
		t.Fatal("backups should default to disabled")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	resetDisplaylogEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		wantErr      bool
		errSubstring string
		assert       func(t *testing.T, cfg appConfig)
	}{
		{
			name: "strict policy and custom bound",
			configYAML: `
validation-policy: STRICT
max-entries: 10
serialize-writes: true
http-port: 9000
`,
			assert: func(t *testing.T, cfg appConfig) {
				if cfg.policy() != ingest.PolicyStrict {
					t.Fatalf("policy = %q, want strict", cfg.policy())
				}
				if cfg.MaxEntries != 10 || !cfg.SerializeWrites {
					t.Fatalf("cfg = %+v", cfg)
				}
				if cfg.HTTPAddr != "0.0.0.0:9000" {
					t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
				}
			},
		},
		{
			name: "explicit http addr wins over port",
			configYAML: `
http-addr: 127.0.0.1:5000
`,
			assert: func(t *testing.T, cfg appConfig) {
				if cfg.HTTPAddr != "127.0.0.1:5000" {
					t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
				}
			},
		},
		{
			name: "trusted proxies",
			configYAML: `
trusted-proxies:
  - 127.0.0.1
  - 10.0.0.0/8
`,
			assert: func(t *testing.T, cfg appConfig) {
				if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "10.0.0.0/8" {
					t.Fatalf("TrustedProxies = %v", cfg.TrustedProxies)
				}
			},
		},
		{
			name: "home expansion",
			configYAML: `
log-path: ~/frames/log.xml
`,
			assert: func(t *testing.T, cfg appConfig) {
				if strings.HasPrefix(cfg.LogPath, "~") || !strings.HasSuffix(cfg.LogPath, filepath.Join("frames", "log.xml")) {
					t.Fatalf("LogPath = %q", cfg.LogPath)
				}
			},
		},
		{
			name: "backup settings",
			configYAML: `
backup-enabled: true
backup-interval: 30m
backup-keep-last: 3
backup-bucket-url: s3://frames/backups
`,
			assert: func(t *testing.T, cfg appConfig) {
				if !cfg.BackupEnabled || cfg.BackupInterval != 30*time.Minute || cfg.BackupKeepLast != 3 {
					t.Fatalf("backup cfg = %+v", cfg)
				}
				if !cfg.BackupS3UseSSL {
					t.Fatal("backup-s3-use-ssl should default to true")
				}
			},
		},
		{
			name:         "unknown policy",
			configYAML:   `validation-policy: lenient`,
			wantErr:      true,
			errSubstring: "ValidationPolicy",
		},
		{
			name:         "zero max entries",
			configYAML:   `max-entries: 0`,
			wantErr:      true,
			errSubstring: "MaxEntries",
		},
		{
			name:         "port out of range",
			configYAML:   `http-port: 70000`,
			wantErr:      true,
			errSubstring: "HTTPPort",
		},
		{
			name: "bad trusted proxy",
			configYAML: `
trusted-proxies:
  - not-an-ip
`,
			wantErr:      true,
			errSubstring: "TrustedProxies",
		},
		{
			name:         "bucket url scheme",
			configYAML:   `backup-bucket-url: https://frames`,
			wantErr:      true,
			errSubstring: "BackupBucketURL",
		},
		{
			name:         "unknown log level",
			configYAML:   `log-level: loud`,
			wantErr:      true,
			errSubstring: "LogLevel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeTempConfig(t, tt.configYAML)
			cfg, err := loadConfig(configPath)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstring != "" && !strings.Contains(err.Error(), tt.errSubstring) {
					t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
				}
				return
			}

			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if cfg.ConfigPath != configPath {
				t.Fatalf("ConfigPath = %q, want %q", cfg.ConfigPath, configPath)
			}
			if tt.assert != nil {
				tt.assert(t, cfg)
			}
		})
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	resetDisplaylogEnv(t)
	t.Setenv("DISPLAYLOG_MAX_ENTRIES", "7")
	t.Setenv("DISPLAYLOG_VALIDATION_POLICY", "strict")

	cfg, err := loadConfig(writeTempConfig(t, `max-entries: 50`))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.MaxEntries != 7 {
		t.Fatalf("MaxEntries = %d, want 7 from env", cfg.MaxEntries)
	}
	if cfg.policy() != ingest.PolicyStrict {
		t.Fatalf("policy = %q, want strict from env", cfg.policy())
	}
}

func TestRedacted_MasksSecrets(t *testing.T) {
	cfg := appConfig{
		BackupS3AccessKey: "AKIA123",
		BackupS3SecretKey: "shh",
		BackupS3Region:    "eu-west-1",
	}
	out, err := yaml.Marshal(cfg.redacted())
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	text := string(out)
	if strings.Contains(text, "AKIA123") || strings.Contains(text, "shh") {
		t.Fatalf("secrets leaked:\n%s", text)
	}
	if !strings.Contains(text, "backup-s3-region: eu-west-1") {
		t.Fatalf("region missing:\n%s", text)
	}
	if !strings.Contains(text, "backup-s3-session-token: \"\"") {
		t.Fatalf("empty token should stay empty:\n%s", text)
	}
	if cfg.BackupS3SecretKey != "shh" {
		t.Fatal("redacted must not modify the receiver")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetDisplaylogEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)
	existed := make(map[string]bool)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "DISPLAYLOG_") {
			continue
		}
		original[key] = value
		existed[key] = true
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key := range existed {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("cleanup unset %s: %v", key, err)
			}
		}
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("cleanup restore %s: %v", key, err)
			}
		}
	})
}
