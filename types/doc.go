// Copyright (c) LocalPilot Authors.
// Licensed under the MIT License.

/*
Package types 提供 localpilot 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 automation、inference、
api 等上层模块提供统一的错误契约与 Context 键。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码、Retryable、Cause
    以及创建时捕获的调用栈（StackTrace）
  - 自动化错误码: BROWSER_LAUNCH_FAILED、NAVIGATION_FAILED、
    CAPABILITY_UNAVAILABLE、AMBIGUOUS_INTENT、CLEANUP_FAILED、AUTOMATION_BUSY

# 主要能力

  - Context 传播：WithRunID / WithUserID / WithRoles
  - 错误工具链：AsError / GetErrorCode / IsRetryable（基于 errors.As）
*/
package types
