// 版权所有 2024 LocalPilot Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 history 持久化每一次自动化运行（start 与 runPrompt）的结果。

Store 基于 GORM，支持 sqlite（纯 Go 的 glebarez 驱动）、postgres
与 mysql，实现 automation.Recorder 接口。写入在事务中完成，遇到死锁
或连接中断时按指数退避重试；配置 keep 后只保留最新的 N 条记录。
记录失败由编排器记日志，不会改变运行结果。
*/
package history
