// 版权所有 2024 LocalPilot Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 LocalPilot API 与 metrics 两个 HTTP 监听器的生命周期。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/WaitForShutdown，并通过 OnShutdown 注册清理钩子，
    例如关闭浏览器会话或刷新遥测。
  - Config：监听地址与超时，可由 FromServerConfig 从应用配置生成。

WaitForShutdown 监听 SIGINT/SIGTERM 与 ctx，收到信号后在
ShutdownTimeout 内排空请求并依次执行钩子。
*/
package server
