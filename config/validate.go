package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	historyDrivers = []string{"sqlite", "postgres", "mysql"}
	logLevels      = []string{"debug", "info", "warn", "error"}
	logFormats     = []string{"json", "console"}
)

// rule 为 true 时表示配置有误
type rule struct {
	bad bool
	msg string
}

// Validate 汇总全部配置错误后一次返回
func (c *Config) Validate() error {
	s, inf, b, a := c.Server, c.Inference, c.Browser, c.Automation
	rules := []rule{
		{!validPort(s.HTTPPort), "invalid HTTP port"},
		{!validPort(s.MetricsPort), "invalid metrics port"},
		{s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0, "server timeouts must not be negative"},
		{s.RateLimitRPS < 0 || s.RateLimitBurst < 0, "rate limits must not be negative"},

		{inf.BaseURL == "", "inference.base_url is required"},
		{inf.Temperature < 0 || inf.Temperature > 2, "temperature must be between 0 and 2"},
		{inf.MaxRetries < 0, "max_retries must not be negative"},

		{b.ViewportWidth <= 0 || b.ViewportHeight <= 0, "browser viewport must be positive"},
		{b.SlowMo < 0 || b.LaunchTimeout < 0, "browser timings must not be negative"},

		{a.Timeout < 0, "automation timeout must not be negative"},
		{a.ScreenshotDir == "", "automation.screenshot_dir is required"},
		{a.Enhanced.MaxSteps < 0, "enhanced max_steps must not be negative"},

		{c.History.Enabled && !slices.Contains(historyDrivers, c.History.Driver),
			fmt.Sprintf("unsupported history driver %q", c.History.Driver)},
		{c.History.Keep < 0, "history keep must not be negative"},

		{!slices.Contains(logLevels, c.Log.Level), fmt.Sprintf("unsupported log level %q", c.Log.Level)},
		{!slices.Contains(logFormats, c.Log.Format), fmt.Sprintf("unsupported log format %q", c.Log.Format)},
		{c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1, "sample_rate must be between 0 and 1"},
	}

	var msgs []string
	for _, r := range rules {
		if r.bad {
			msgs = append(msgs, r.msg)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.New("config validation errors: " + strings.Join(msgs, "; "))
}

func validPort(p int) bool { return p > 0 && p <= 65535 }
