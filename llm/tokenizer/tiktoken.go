package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tiktokenTokenizer 为 OpenAI 家族模型封装 tiktoken。
type tiktokenTokenizer struct {
	model    string
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// encodingFor 将模型名映射到 tiktoken 编码。
// o200k_base 覆盖 4o 与 o 系列推理模型，更早的模型用 cl100k_base。
func encodingFor(model string) string {
	for _, prefix := range []string{"gpt-4o", "gpt-4.1", "gpt-5", "o1", "o3", "o4", "chatgpt-"} {
		if strings.HasPrefix(model, prefix) {
			return "o200k_base"
		}
	}
	return "cl100k_base"
}

func newTiktokenTokenizer(model string) *tiktokenTokenizer {
	return &tiktokenTokenizer{
		model:    model,
		encoding: encodingFor(model),
	}
}

// init lazily 初始化 tiktoken 编码（首次使用时可能加载编码表）。
func (t *tiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *tiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *tiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
