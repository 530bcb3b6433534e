// Package tokenizer 为各提供商的 CountTokens 实现提供共享的计数能力：
// OpenAI 家族模型走 tiktoken 精确计数，其余模型回退到启发式估算器。
package tokenizer
