// Package telemetry 安装 OpenTelemetry 的全局 TracerProvider 与 MeterProvider。
// 编排器的 automation.* span 与运行计数器、HTTP 中间件的 server span 都经由它导出；
// 遥测关闭时保持 noop，不连接任何外部服务。
package telemetry
