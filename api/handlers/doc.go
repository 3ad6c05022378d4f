// Copyright (c) LocalPilot Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 LocalPilot HTTP API 的请求处理器实现。

# 核心类型

  - AutomationHandler: 启动演示、执行自动化指令、停止会话、查询状态
  - InferenceHandler: 本地推理服务状态、模型列表、单轮提示、端点探测
  - DiagnosticsHandler: 增强后端诊断报告
  - HistoryHandler: 运行历史列表与详情
  - HealthHandler: 服务健康检查（/health, /healthz, /ready）
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码

# 错误映射

失败的自动化结果按错误码映射 HTTP 状态：AUTOMATION_BUSY → 409，
AMBIGUOUS_INTENT → 422，BROWSER_LAUNCH_FAILED / CAPABILITY_UNAVAILABLE → 503，
TIMEOUT → 504，CONNECTIVITY → 502。完整的 automation.Result 仍放在 data 中返回。
*/
package handlers
