// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "localpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "phi-4-mini", cfg.Inference.DefaultModel)
	assert.Equal(t, "agentic", cfg.Automation.Enhanced.Name)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

inference:
  base_url: "http://127.0.0.1:5000"
  default_model: "qwen2.5-0.5b"
  probe_ports: [1234]
  temperature: 0.2

browser:
  headless: true
  slow_mo: 0s
  viewport_width: 1920

automation:
  screenshot_dir: "/tmp/shots"
  timeout: 45s
  demo:
    primary: "https://example.org"
  enhanced:
    enabled: false
    max_steps: 3

history:
  driver: "postgres"
  host: "db"
  port: 5432
  keep: 10

log:
  level: "debug"
  format: "json"
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	assert.Equal(t, "http://127.0.0.1:5000", cfg.Inference.BaseURL)
	assert.Equal(t, "/v1", cfg.Inference.APIPath, "unset keys keep defaults")
	assert.Equal(t, "qwen2.5-0.5b", cfg.Inference.DefaultModel)
	assert.Equal(t, []int{1234}, cfg.Inference.ProbePorts)
	assert.InDelta(t, 0.2, cfg.Inference.Temperature, 1e-6)

	assert.True(t, cfg.Browser.Headless)
	assert.Zero(t, cfg.Browser.SlowMo)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 720, cfg.Browser.ViewportHeight)

	assert.Equal(t, "/tmp/shots", cfg.Automation.ScreenshotDir)
	assert.Equal(t, 45*time.Second, cfg.Automation.Timeout)
	assert.Equal(t, "https://example.org", cfg.Automation.Demo.Primary)
	assert.Equal(t, "https://openai.com/pricing", cfg.Automation.Demo.Fallback)
	assert.False(t, cfg.Automation.Enhanced.Enabled)
	assert.Equal(t, 3, cfg.Automation.Enhanced.MaxSteps)
	assert.Equal(t, "agentic", cfg.Automation.Enhanced.Name)

	assert.Equal(t, "postgres", cfg.History.Driver)
	assert.Equal(t, 10, cfg.History.Keep)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("LOCALPILOT_SERVER_HTTP_PORT", "9999")
	t.Setenv("LOCALPILOT_SERVER_HOST", "0.0.0.0")
	t.Setenv("LOCALPILOT_SERVER_CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("LOCALPILOT_INFERENCE_BASE_URL", "http://gpu-box:5273")
	t.Setenv("LOCALPILOT_INFERENCE_LIVENESS_TIMEOUT", "500ms")
	t.Setenv("LOCALPILOT_INFERENCE_PROBE_PORTS", "7000, 7001")
	t.Setenv("LOCALPILOT_BROWSER_HEADLESS", "true")
	t.Setenv("LOCALPILOT_AUTOMATION_ENHANCED_ENABLED", "false")
	t.Setenv("LOCALPILOT_AUTOMATION_DEMO_ENHANCED", "https://example.net")
	t.Setenv("LOCALPILOT_TELEMETRY_SAMPLE_RATE", "0.5")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "http://gpu-box:5273", cfg.Inference.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Inference.LivenessTimeout)
	assert.Equal(t, []int{7000, 7001}, cfg.Inference.ProbePorts)
	assert.True(t, cfg.Browser.Headless)
	assert.False(t, cfg.Automation.Enhanced.Enabled)
	assert.Equal(t, "https://example.net", cfg.Automation.Demo.Enhanced)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 7000\nlog:\n  level: warn\n")
	t.Setenv("LOCALPILOT_SERVER_HTTP_PORT", "7100")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.HTTPPort)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("PILOT_LOG_LEVEL", "error")
	cfg, err := NewLoader().WithEnvPrefix("PILOT").Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("LOCALPILOT_INFERENCE_COMPLETION_TIMEOUT", "soon")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCALPILOT_INFERENCE_COMPLETION_TIMEOUT")
}

func TestLoader_WithValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error { return c.Validate() }).Load()
	require.NoError(t, err)

	t.Setenv("LOCALPILOT_SERVER_HTTP_PORT", "0")
	_, err = NewLoader().WithValidator(func(c *Config) error { return c.Validate() }).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: [not, a, port\n")
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default config", func(c *Config) {}, ""},
		{"negative http port", func(c *Config) { c.Server.HTTPPort = -1 }, "invalid HTTP port"},
		{"metrics port too large", func(c *Config) { c.Server.MetricsPort = 70000 }, "invalid metrics port"},
		{"missing base url", func(c *Config) { c.Inference.BaseURL = "" }, "base_url is required"},
		{"temperature too high", func(c *Config) { c.Inference.Temperature = 2.5 }, "temperature"},
		{"zero viewport", func(c *Config) { c.Browser.ViewportWidth = 0 }, "viewport"},
		{"negative timeout", func(c *Config) { c.Automation.Timeout = -time.Second }, "automation timeout"},
		{"unknown driver", func(c *Config) { c.History.Driver = "oracle" }, `unsupported history driver "oracle"`},
		{"disabled history ignores driver", func(c *Config) { c.History.Enabled = false; c.History.Driver = "oracle" }, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "unsupported log level"},
		{"bad sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHistoryConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      HistoryConfig
		expected string
	}{
		{
			name:     "postgres",
			cfg:      HistoryConfig{Driver: "postgres", Host: "db", Port: 5432, User: "lp", Password: "pw", Name: "runs", SSLMode: "disable"},
			expected: "host=db port=5432 user=lp password=pw dbname=runs sslmode=disable",
		},
		{
			name:     "mysql",
			cfg:      HistoryConfig{Driver: "mysql", Host: "db", Port: 3306, User: "lp", Password: "pw", Name: "runs"},
			expected: "lp:pw@tcp(db:3306)/runs?parseTime=true",
		},
		{
			name:     "sqlite",
			cfg:      HistoryConfig{Driver: "sqlite", Name: "file.db"},
			expected: "file.db",
		},
		{
			name:     "unknown",
			cfg:      HistoryConfig{Driver: "oracle"},
			expected: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.DSN())
		})
	}
}

func TestJWTConfig_Enabled(t *testing.T) {
	assert.False(t, JWTConfig{}.Enabled())
	assert.True(t, JWTConfig{Secret: "s"}.Enabled())
	assert.True(t, JWTConfig{PublicKey: "pem"}.Enabled())
}

func TestMustLoad(t *testing.T) {
	cfg := MustLoad(writeConfig(t, "server:\n  metrics_port: 9200\n"))
	assert.Equal(t, 9200, cfg.Server.MetricsPort)

	assert.Panics(t, func() { MustLoad(writeConfig(t, "server: [")) })
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("LOCALPILOT_LOG_FORMAT", "json")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}
