// 版权所有 2024 LocalPilot Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 inference 是本地推理服务（Foundry Local 及其他 OpenAI 兼容服务）的客户端门面。

# 概述

Client 基于 llm/providers/openaicompat 发送请求，外层包一层
providers.WithRetry 做指数退避重试，并把传输层错误转换成带可操作提示的
types.Error（CONNECTIVITY / TIMEOUT / INVALID_REQUEST）。

# 主要能力

  - IsLive / Status：在 3 秒内检查状态端点
  - ListModels：列出服务端已加载的模型
  - Complete / Stream：单轮提示；请求的模型未加载时退回第一个可用模型
  - Probe：并发探测配置地址、OPENAI_BASE_URL 与 localhost 常用端口，
    SaveProbeReport 把最快的可用地址写成 YAML 配置片段
*/
package inference
