// Copyright (c) LocalPilot Authors.
// Licensed under the MIT License.

/*
Package diagnostics 检查增强后端能否在当前环境中使用。

Diagnose 只做检查，不修改任何会话状态，可以在没有会话时随时调用。
报告包含执行器是否已注册、版本、能力声明、初始化会失败的原因，
以及按问题给出的修复建议。
*/
package diagnostics
