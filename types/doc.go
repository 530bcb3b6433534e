// Copyright 2026 ModelGate Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package types 提供 ModelGate 全局共享的类型定义。

# 概述

types 是网关最底层的公共包，不依赖任何内部包，为 llm、providers、
config 等上层模块提供统一的类型契约。跨包共享的错误码与结构化错误
均定义于此，以避免循环依赖。

# 错误体系

  - [Error] / [ErrorCode] — 结构化错误，含 HTTP 状态码、Retryable、Provider 标记
  - 上游错误码：INVALID_REQUEST、RATE_LIMITED、QUOTA_EXCEEDED、
    UPSTREAM_TIMEOUT、UPSTREAM_ERROR 等
  - 路由与保护错误码：MODEL_NOT_FOUND、MODEL_RESTRICTED、
    CIRCUIT_OPEN、RETRY_EXHAUSTED
  - 配置错误码：CONFIGURATION、DUPLICATE_ALIAS、INVALID_URL，
    构造期快速失败，永不重试

# 主要能力

  - 链式构造：NewError + WithCause / WithHTTPStatus / WithRetryable / WithProvider
  - 错误检视：GetErrorCode / GetHTTPStatus / IsRetryable
  - errors.Is / errors.As 兼容：Error 实现 Unwrap，保留底层原因链
*/
package types
