// Copyright 2026 LocalPilot Authors. All rights reserved.
// Use of this source code is governed by a MIT license.

/*
Package testutil 提供 LocalPilot 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup 防止泄漏
  - 断言工具: AssertErrorCode / AssertLinesContain
  - 异步断言: AssertEventuallyTrue / WaitForChannel

# 子包

  - testutil/fakes: 内存中的浏览器驱动（Launcher / Browser / Page），
    支持按 URL 注入导航错误、延迟与截图失败
  - testutil/mocks: MockLanguageModel，Builder 模式配置规划器回复

# 使用示例

	launcher := fakes.NewLauncher().WithPageSetup(func(p *fakes.Page) {
		p.FailNavigation("https://example.com", errors.New("boom"))
	})
*/
package testutil
