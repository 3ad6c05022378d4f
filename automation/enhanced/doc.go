// 版权所有 2024 LocalPilot Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 enhanced 实现可选的增强自动化后端。

# 概述

执行器通过 Registry 中的 Descriptor 注册（名字、版本、能力声明、
工厂函数与运行时探测），取代按名字动态加载模块。默认注册的 agentic
执行器在编排器共享的页面上运行观察-规划-执行循环：

 1. Observe 读取 URL、标题与可见文本，文本按 token 预算裁剪
 2. Planner 请语言模型返回下一步 JSON 动作
 3. 执行 navigate / click / type / scroll / screenshot，直到 done 或步数上限

# 适配器

Adapter 实现 automation.EnhancedInitializer。初始化失败（未注册、能力缺失、
推理服务不可达、构造失败）一律返回 CAPABILITY_UNAVAILABLE，编排器据此回退。
运行结果中的 base64 图片被解码为 enhanced_screenshot_<i>.png。
*/
package enhanced
