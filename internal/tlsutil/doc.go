// Package tlsutil 为访问推理服务与 OTLP collector 的客户端选择传输层：
// 本机地址走不经代理的明文连接，远端地址使用 TLS 1.2+ 且仅 AEAD 套件。
package tlsutil
