// 版权所有 2024 LocalPilot Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义本地推理服务的统一请求、响应与错误模型。

# 概述

inference 包通过 [Provider] 调用 OpenAI 兼容的本地推理服务
（Foundry Local、Ollama、LM Studio 等），本包只包含与具体服务无关的类型，
使上层只依赖这一组结构。

# 核心接口

  - [Provider]：Completion / Stream / HealthCheck / ListModels / Name

# 核心类型

  - [ChatRequest] / [ChatResponse] / [ChatChoice]：聊天请求与响应
  - [StreamChunk]：流式输出分片，最后一片可带 [ChatUsage]
  - [Model]：/models 返回的模型条目
  - [HealthStatus]：健康检查结果
  - [Error] / [ErrorCode]：带 HTTP 状态与可重试标记的结构化错误

# 相关子包

  - llm/providers：错误映射、消息转换与重试包装
  - llm/providers/openaicompat：OpenAI 兼容 HTTP Provider
  - llm/tokenizer：tiktoken 计数与 CJK 估算，用于增强后端的上下文预算
*/
package llm
