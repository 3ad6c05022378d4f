// Copyright (c) LocalPilot Authors.
// Licensed under the MIT License.

/*
Package main 提供 LocalPilot 的命令行与服务端入口。

# 概述

cmd/localpilot 把浏览器自动化编排器、本地推理客户端和增强后端诊断
组装为一个可执行程序。serve 子命令启动 HTTP API 与 Metrics 双端口；
其余子命令在本进程内直接运行自动化或调用推理服务，结果写 stdout，
日志写 stderr。

# 核心类型

  - Server: 主服务器，管理 API、Metrics 双端口、配置热更新与优雅关闭
  - components: serve 与命令行共用的对象图（推理客户端、启动器、两个后端）
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler

# 子命令

  - serve：启动服务
  - demo / run / selftest：打开演示页面、执行自然语言指令、只用基础后端自检
  - diagnose：输出增强后端诊断报告（JSON）
  - models / ask / probe：列出模型、单轮提问、探测可用的推理端点
  - health / version：检查运行中的服务、显示版本

# 中间件链

Recovery、RequestID、SecurityHeaders、RequestLogger、Metrics、OTel、
CORS、RateLimiter（按 IP）和认证。配置了 JWT 时使用 JWTAuth（HS256 / RS256），
否则使用 APIKeyAuth（X-API-Key 头，可选 api_key 查询参数）。

# 热更新

指定配置文件时 serve 会监听文件变更：日志级别、默认运行选项与增强后端设置
立即生效，端口与数据库变更需要重启。

# 关闭流程

信号 → 停止配置监听 → 关闭 API 监听器 → 停止浏览器会话 → 关闭事件流 →
关闭历史库 → 刷新遥测 → 关闭 Metrics 服务器。
Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
