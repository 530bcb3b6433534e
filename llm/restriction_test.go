package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestAllowListPolicy_ExactStringMatching(t *testing.T) {
	// 只允许别名 "flash"，不含它指向的规范名
	policy := NewAllowListPolicy(map[ProviderType][]string{
		ProviderGemini: {"flash"},
	}, zap.NewNop())

	// 请求别名：放行
	assert.True(t, policy.IsAllowed(ProviderGemini, "gemini-2.5-flash", "flash"))
	assert.True(t, policy.IsAllowed(ProviderGemini, "gemini-2.5-flash", "FLASH"))

	// 请求规范名：拒绝。精确字符串匹配，不做别名闭包展开。
	assert.False(t, policy.IsAllowed(ProviderGemini, "gemini-2.5-flash", "gemini-2.5-flash"))
}

func TestAllowListPolicy_CanonicalOnList(t *testing.T) {
	policy := NewAllowListPolicy(map[ProviderType][]string{
		ProviderOpenAI: {"gpt-4.1"},
	}, zap.NewNop())

	// 规范名在清单上时，任何解析到它的请求名都放行
	assert.True(t, policy.IsAllowed(ProviderOpenAI, "gpt-4.1", "gpt4.1"))
	assert.True(t, policy.IsAllowed(ProviderOpenAI, "gpt-4.1", "gpt-4.1"))
	assert.False(t, policy.IsAllowed(ProviderOpenAI, "gpt-4o-mini", "mini"))
}

func TestAllowListPolicy_UnrestrictedProvider(t *testing.T) {
	policy := NewAllowListPolicy(map[ProviderType][]string{
		ProviderOpenAI: {"gpt-4.1"},
	}, zap.NewNop())

	// 没有清单的提供商不受限
	assert.True(t, policy.IsAllowed(ProviderGemini, "anything", "anything"))
	assert.True(t, policy.HasRestrictions(ProviderOpenAI))
	assert.False(t, policy.HasRestrictions(ProviderGemini))
}

func TestAllowListPolicy_NormalizesEntries(t *testing.T) {
	policy := NewAllowListPolicy(map[ProviderType][]string{
		ProviderCustom: {"  Local-Llama  ", "", "   "},
	}, zap.NewNop())

	assert.True(t, policy.IsAllowed(ProviderCustom, "local-llama", ""))
	assert.True(t, policy.IsAllowed(ProviderCustom, "LOCAL-LLAMA", ""))
	// 空白项被丢弃，不会变成"允许空名"
	assert.False(t, policy.IsAllowed(ProviderCustom, "other", ""))
}

func TestAllowListPolicy_EmptyListMeansUnrestricted(t *testing.T) {
	policy := NewAllowListPolicy(map[ProviderType][]string{
		ProviderDIAL: {},
	}, zap.NewNop())

	assert.False(t, policy.HasRestrictions(ProviderDIAL))
	assert.True(t, policy.IsAllowed(ProviderDIAL, "anything", "x"))
}

func TestPermitAllPolicy(t *testing.T) {
	policy := PermitAllPolicy()
	for _, p := range ProviderPriority {
		assert.True(t, policy.IsAllowed(p, "model", "alias"))
		assert.False(t, policy.HasRestrictions(p))
	}
}
