package config

import (
	"time"

	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/automation/enhanced"
	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/inference"
)

// DefaultConfig 对应本机 Foundry Local 服务与有界面的 Chrome，JWT 与遥测默认关闭
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Inference:  inference.DefaultConfig(),
		Browser:    browser.DefaultConfig(),
		Automation: DefaultAutomationConfig(),
		History:    DefaultHistoryConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 只监听本机：API 8080，metrics 9091
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "127.0.0.1",
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    3 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

func DefaultAutomationConfig() AutomationConfig {
	return AutomationConfig{
		ScreenshotDir: automation.DefaultArtifactDir,
		Demo:          automation.DefaultDemoTargets(),
		Enhanced:      enhanced.DefaultConfig(),
	}
}

// DefaultHistoryConfig 使用工作目录下的 sqlite 文件。sqlite 只允许一个写连接。
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled:         true,
		Driver:          "sqlite",
		Name:            "localpilot.db",
		SSLMode:         "disable",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 30 * time.Minute,
		Keep:            500,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "console",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 指向本机 collector，采样 10%
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "localpilot",
		SampleRate:   0.1,
	}
}
