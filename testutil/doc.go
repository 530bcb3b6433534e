// Copyright 2026 ModelGate Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 ModelGate 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足

# 子包

  - testutil/mocks: Mock 实现，包括 MockProvider（脚本化的后端模拟），
    支持 Builder 模式、错误注入与调用记录

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider(llm.ProviderCustom, "test-model").
	    WithResponse("hello")
	resp, err := provider.GenerateContent(ctx, req)
	require.NoError(t, err)
*/
package testutil
