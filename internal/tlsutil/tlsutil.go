package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"
)

// aeadSuites 是 TLS 1.2 下允许的套件；TLS 1.3 的套件由 Go 固定，不受此列表影响
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// Config 返回 TLS 1.2+、仅 AEAD 套件的客户端配置，每次调用返回新副本
func Config() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: slices.Clone(aeadSuites),
	}
}

// IsLoopbackHost 判断不带端口的主机名是否指向本机
func IsLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsLoopback 判断 URL 是否指向本机
func IsLoopback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && IsLoopbackHost(u.Hostname())
}

// IsLoopbackAddr 判断 host:port 形式的地址（如 OTLP gRPC 端点）是否指向本机
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return IsLoopbackHost(host)
}

// ClientFor 为本机推理服务返回不走代理、快速失败的明文 client，
// 为远端服务返回 TLS 加固的 client。
func ClientFor(baseURL string, timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: transport(IsLoopback(baseURL))}
}

func transport(loopback bool) *http.Transport {
	if loopback {
		// 本机服务未启动时连接立即被拒绝，3 秒拨号上限只兜底异常情况
		return &http.Transport{
			DialContext:     (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:    10,
			IdleConnTimeout: 90 * time.Second,
		}
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       Config(),
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
