package tokenizer

import (
	"strings"
	"sync"
)

// Tokenizer 是统一的 token 计数接口。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称
	Name() string
}

// 每模型分词器缓存。tiktoken 编码初始化有成本，按模型复用。
var (
	cache   = make(map[string]Tokenizer)
	cacheMu sync.Mutex
)

// For 返回适用于该模型的分词器：
// OpenAI 家族（gpt-*、o 系列、text-embedding-*）用 tiktoken，
// 其余模型用字符估算器。同一模型的结果会被缓存。
func For(model string) Tokenizer {
	key := strings.ToLower(model)

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if t, ok := cache[key]; ok {
		return t
	}

	var t Tokenizer
	if isOpenAIFamily(key) {
		t = newTiktokenTokenizer(key)
	} else {
		t = NewEstimator(key)
	}
	cache[key] = t
	return t
}

func isOpenAIFamily(model string) bool {
	for _, prefix := range []string{"gpt-", "o1", "o3", "o4", "chatgpt-", "text-embedding-"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
