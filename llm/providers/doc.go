// Copyright 2026 LocalPilot Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 providers 收纳 OpenAI 兼容推理服务的线格式与通用 HTTP 辅助，
openaicompat 子包在此之上实现 llm.Provider。

# 线格式

ChatCompletionRequest / ChatCompletion 对应 /chat/completions 的请求与响应，
SSE 的每个 data 帧也按 ChatCompletion 解码，再由 Chunks 拆成 llm.StreamChunk。

# 错误

  - StatusError: 非 2xx 响应按状态码查表，503 视为模型加载中（可重试）
  - TransportError: 连接被拒绝与 DNS 失败标记为 ErrProviderUnavailable 且不可重试
  - ErrorMessage: 兼容 {"error":{...}}、{"error":"..."} 与 {"detail":"..."}

# 重试

WithRetry 基于 cenkalti/backoff 做指数退避，只重试 llm.IsRetryable 的错误，
流式请求只在连接阶段重试。
*/
package providers
