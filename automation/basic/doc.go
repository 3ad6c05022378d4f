// Package basic 实现基于规则的自动化后端。
//
// 提示词按三条规则分类：含导航动词且能提取域名时访问该域名；
// 含导航动词但没有域名时返回 AMBIGUOUS_INTENT；否则访问 example.com。
// 动词按整词匹配，"visitor"、"reopened" 之类不视为导航意图。
// 每次调用都启动独立的浏览器并整页截图为 fallback_screenshot.png。
package basic
