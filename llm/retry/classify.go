package retry

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/BaSui01/modelgate/types"
)

// terminalQuotaSignatures 出现在 429 响应体中的配额/资源耗尽签名。
// 命中任何一个都说明不是普通限流，重试无意义。
var terminalQuotaSignatures = []string{
	"quota",
	"resource_exhausted",
	"resource exhausted",
	"credit balance",
	"billing",
	"context length",
	"context_length_exceeded",
	"token limit",
	"tokens exceed",
	"too many tokens",
	"maximum context",
}

// retryableStatuses 可重试的 HTTP 状态码（429 单独处理）。
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// DefaultClassifier 是所有后端集成共享的基线错误分类：
//   - 超时、连接/网络错误、TLS 握手失败可重试
//   - 408/500/502/503/504 可重试
//   - 格式错误的请求与上下文超长不可重试
//   - 429 需要检查响应体：配额/资源耗尽/上下文/token 上限签名是终态，
//     其余按瞬时限流处理并重试
//
// 后端可以通过 Policy.IsRetryable 覆盖这份分类。
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}

	// 结构化错误优先按错误码与状态码分类
	var ge *types.Error
	if errors.As(err, &ge) {
		return classifyStructured(ge)
	}

	// 超时（含 context deadline 与 net.Error 超时）
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// 连接级错误
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// TLS / 握手失败
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	// 裸传输错误兜底：按消息签名判断
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{
		"timeout", "timed out", "connection refused", "connection reset",
		"broken pipe", "no such host", "handshake", "eof",
	} {
		if strings.Contains(msg, sig) {
			return true
		}
	}

	return false
}

// classifyStructured 按 types.Error 的码/状态分类。
func classifyStructured(e *types.Error) bool {
	switch e.Code {
	case types.ErrUpstreamTimeout, types.ErrUpstreamError,
		types.ErrServiceUnavailable, types.ErrProviderUnavailable:
		return true
	case types.ErrInvalidRequest, types.ErrContextTooLong,
		types.ErrQuotaExceeded, types.ErrAuthentication,
		types.ErrUnauthorized, types.ErrForbidden,
		types.ErrContentFiltered, types.ErrModelNotFound:
		return false
	case types.ErrRateLimited:
		// 429：配额类签名是终态，普通限流重试
		return !hasTerminalQuotaSignature(e.Message) && !hasTerminalQuotaSignature(causeMessage(e))
	}

	if e.HTTPStatus == http.StatusTooManyRequests {
		return !hasTerminalQuotaSignature(e.Message) && !hasTerminalQuotaSignature(causeMessage(e))
	}
	if retryableStatuses[e.HTTPStatus] {
		return true
	}
	if e.HTTPStatus >= 400 && e.HTTPStatus < 500 {
		return false
	}

	// 显式标注优先于兜底
	return e.Retryable
}

func hasTerminalQuotaSignature(payload string) bool {
	lower := strings.ToLower(payload)
	for _, sig := range terminalQuotaSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

func causeMessage(e *types.Error) string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}
