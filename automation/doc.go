// Copyright (c) LocalPilot Authors.
// Licensed under the MIT License.

/*
Package automation 编排浏览器自动化：会话生命周期、后端选择与结果规范化。

# 概述

Orchestrator 持有唯一的浏览器会话，对外提供 Start（演示流程）、
RunPrompt（自然语言提示）与 Stop（释放资源）三个操作。RunPrompt
优先使用增强后端（EnhancedBackend），任何失败都会回退到基础后端
（Backend）一次；基础后端的失败直接返回给调用方。

# 并发

同一时刻只运行一个操作。Start 与 RunPrompt 在忙时立即返回
AUTOMATION_BUSY；Stop 会取消进行中的操作后排队执行。

# 结果

所有操作都返回 *Result，且满足：

  - 失败的结果一定带 Error（缺省为 "unknown error"）
  - 成功的结果不带 Error / Code / StackTrace
  - Screenshots 与 Output 永远不为 nil

输出行由 Transcript 收集，同时写入 zap 日志并推送到 EventSink。
*/
package automation
