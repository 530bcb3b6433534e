// Copyright 2026 ModelGate Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
包 llm 提供统一的大语言模型接入层：模型路由、能力目录、
访问限制、熔断重试与并发调度。

# 概述

本包屏蔽不同模型服务商在接口、鉴权与错误语义上的差异，
对上层暴露一致的请求与响应模型。调用方只提供一个模型名
（规范名或别名，大小写不敏感），由注册中心解析到唯一的提供商。

# 核心接口与类型

  - [ModelProvider]：提供商接口，涵盖能力查询、模型校验、
    内容生成、Token 计数与生命周期管理
  - [Registry]：模型名到提供商的进程级解析权威，
    工厂显式注册、实例惰性构造，按固定优先级顺序解析
  - [AsyncRegistry]：并发感知调度层，单请求走共享并发门，
    批量请求按提供商分组并保序重组
  - [ResilientProvider]：熔断 + 重试装饰器，熔断器只把整个
    重试循环的最终结果计为一次成功/失败
  - [Catalog]：单一提供商的模型能力目录，别名唯一性在构造期校验
  - [RestrictionPolicy]：模型允许清单，精确字符串匹配
  - [AvailabilityStore]：可用性探测缓存，内存与 Redis 两种实现

# 解析语义

提供商按 [ProviderPriority] 固定顺序被询问，第一个接受该模型名的
提供商获胜。别名知识完全由各提供商的目录持有，注册中心不维护
集中的别名表。Azure 部署目录排在直连 OpenAI 凭据之前，两条凭据
路径同时可服务一个模型族时记录被忽略的一方。

# 相关子包

  - llm/circuitbreaker：按端点隔离的三态熔断器
  - llm/retry：查表延迟的重试策略与共享错误分类器
  - llm/tokenizer：tiktoken 精确计数与启发式估算
  - llm/factory：从配置装配注册中心与弹性包装
*/
package llm
