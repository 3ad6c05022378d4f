// Package config 提供 LocalPilot 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序加载，
// Watcher 监听配置文件并在校验通过后通知订阅者。
package config
