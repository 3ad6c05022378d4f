// Package tokenizer 统计发给本地模型的 token 数。
//
// ForModel 组合 tiktoken BPE 计数与离线估算器；Truncate 把页面文本
// 裁剪到增强后端的观察预算之内。
package tokenizer
