// 版权所有 2024 LocalPilot Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 browser 封装 localpilot 使用的浏览器驱动。

# 概述

browser 把 chromedp 包装为三层抽象：Launcher 启动 Chrome 进程，
Browser 管理进程生命周期，Page 对应一个标签页并提供导航、截图、
内容读取和基础交互。自动化后端只依赖这些接口，测试中可替换为
testutil/fakes 中的内存实现。

# 核心接口

  - Launcher：按 Config 启动浏览器（有头/无头、SlowMo、视口）
  - Browser：NewPage / Close
  - Page：Navigate / Screenshot / Content / Title / URL /
    Click / Type / Scroll / Close

# 超时

每个 Page 操作都受调用方 ctx 约束，截止时间到达时返回
context.DeadlineExceeded（经 %w 包装）。浏览器启动超时由
Config.LaunchTimeout 控制。

# 文本提取

VisibleText 基于 golang.org/x/net/html 解析 HTML，跳过脚本和样式，
返回折叠空白后的可见文本，用于内容分析与模型观测。
*/
package browser
