package llm

import (
	"fmt"
)

// ModelNotFoundError 表示未知或被限制的模型名。
// 路由失败与限制拒绝共用这一错误类型，Restricted 字段区分两种情况。
type ModelNotFoundError struct {
	Model      string
	Restricted bool
}

func (e *ModelNotFoundError) Error() string {
	if e.Restricted {
		return fmt.Sprintf("model %q is not allowed by the configured restriction policy", e.Model)
	}
	return fmt.Sprintf("no provider serves model %q", e.Model)
}

// NewModelNotFoundError 创建未知模型错误。
func NewModelNotFoundError(model string) *ModelNotFoundError {
	return &ModelNotFoundError{Model: model}
}

// NewModelRestrictedError 创建模型被限制错误。
func NewModelRestrictedError(model string) *ModelNotFoundError {
	return &ModelNotFoundError{Model: model, Restricted: true}
}
