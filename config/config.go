package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/automation/enhanced"
	"github.com/BaSui01/localpilot/browser"
	"github.com/BaSui01/localpilot/inference"
)

// Config 是 LocalPilot 的完整配置。env 标签拼接成 LOCALPILOT_<段>_<字段> 形式的环境变量名。
type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	JWT        JWTConfig        `yaml:"jwt" env:"JWT"`
	Inference  inference.Config `yaml:"inference" env:"INFERENCE"`
	Browser    browser.Config   `yaml:"browser" env:"BROWSER"`
	Automation AutomationConfig `yaml:"automation" env:"AUTOMATION"`
	History    HistoryConfig    `yaml:"history" env:"HISTORY"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 是 API 与 metrics 监听器的配置
type ServerConfig struct {
	// 监听地址，为空时监听所有网卡
	Host        string `yaml:"host" env:"HOST"`
	HTTPPort    int    `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort int    `yaml:"metrics_port" env:"METRICS_PORT"`

	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 需要覆盖一次完整的同步自动化运行
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 为空时不做认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// websocket 客户端无法设置请求头，只能用 ?api_key=
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// 每个客户端 IP 的令牌桶，RPS 为 0 时关闭限流
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// JWTConfig 配置 Bearer 令牌校验。Secret 对应 HS256，PublicKey 为 RS256 的 PEM 公钥。
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 为 true 时 JWT 认证取代 API Key 认证
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// AutomationConfig 编排器配置
type AutomationConfig struct {
	ScreenshotDir string `yaml:"screenshot_dir" env:"SCREENSHOT_DIR"`
	// 0 表示导航 60s、增强后端 120s
	Timeout  time.Duration           `yaml:"timeout" env:"TIMEOUT"`
	Demo     automation.DemoTargets `yaml:"demo" env:"DEMO"`
	Enhanced enhanced.Config        `yaml:"enhanced" env:"ENHANCED"`
}

// Options 返回请求未指定时使用的运行选项
func (a AutomationConfig) Options(b browser.Config) automation.Options {
	return automation.Options{Headless: b.Headless, SlowMo: b.SlowMo, Timeout: a.Timeout}
}

// HistoryConfig 运行历史数据库
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// sqlite, postgres, mysql
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// sqlite 时为文件路径
	Name    string `yaml:"name" env:"NAME"`
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`

	// 只保留最新的 Keep 条记录，0 表示不清理
	Keep int `yaml:"keep" env:"KEEP"`
}

// DSN 返回 gorm 驱动使用的连接串，未知驱动返回空串
func (d *HistoryConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	}
	return ""
}

// LogConfig zap 日志配置
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format           string   `yaml:"format" env:"FORMAT"` // json, console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig OpenTelemetry 导出配置
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// gRPC host:port；本机地址走明文，其他走 TLS
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}
