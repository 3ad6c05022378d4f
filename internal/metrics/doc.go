// 版权所有 2024 LocalPilot Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、推理服务、浏览器自动化、事件流与运行历史数据库。

# 概述

NewCollector 通过 promauto 注册到默认 Registry，NewCollectorWith
接受独立的 Registerer，所有指标按 namespace 隔离。它同时实现 automation.Observer 与
inference.Observer，可以直接传给编排器和推理客户端。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 推理指标：按 operation（status/models/completion/stream）统计调用次数与耗时。
  - 自动化指标：按 kind/backend 统计运行次数与耗时，回退次数，截图数，
    浏览器会话数 Gauge。
  - 事件流指标：因订阅者过慢而丢弃的输出事件。
  - 数据库指标：连接池 Gauge、查询耗时 Histogram。
*/
package metrics
