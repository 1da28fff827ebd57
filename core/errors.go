package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType 表示错误类型的字符串枚举，用于区分不同的错误来源和类别
type ErrorType string

// 错误类型枚举常量定义
const (
	ErrorTypeValidation ErrorType = "validation" // 校验错误，如参数不合法
	ErrorTypeDatabase   ErrorType = "database"   // 数据库相关错误
	ErrorTypeSchema     ErrorType = "schema"     // Schema 失配错误（表/列缺失）
	ErrorTypeLLM        ErrorType = "llm"        // 生成式协作者相关错误
	ErrorTypeRetrieval  ErrorType = "retrieval"  // 知识检索相关错误
	ErrorTypeTimeout    ErrorType = "timeout"    // 超时错误
	ErrorTypeNotFound   ErrorType = "not_found"  // 资源未找到错误
	ErrorTypeInternal   ErrorType = "internal"   // 内部错误
)

// AgentError 系统内的结构化错误，包含类型、错误码与原因链。
type AgentError struct {
	Type      ErrorType      `json:"type"`                 // 错误类型
	Code      string         `json:"code"`                 // 错误码
	Message   string         `json:"message"`              // 错误信息
	Details   map[string]any `json:"details,omitempty"`    // 附加上下文（可选）
	Cause     error          `json:"-"`                    // 原始错误，支持错误链
	Timestamp time.Time      `json:"timestamp"`            // 发生时间
	RequestID string         `json:"request_id,omitempty"` // 请求 ID（可选）
}

// Error 实现 error 接口
func (e *AgentError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap 支持错误链
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// NewAgentError 创建新的结构化错误
func NewAgentError(errorType ErrorType, code, message string) *AgentError {
	return &AgentError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithDetails 添加错误详情
func (e *AgentError) WithDetails(details map[string]any) *AgentError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AgentError) WithCause(cause error) *AgentError {
	e.Cause = cause
	return e
}

// WithRequestID 添加请求ID
func (e *AgentError) WithRequestID(requestID string) *AgentError {
	e.RequestID = requestID
	return e
}

// 预定义的错误变量
var (
	ErrEmptyQuestion  = NewAgentError(ErrorTypeValidation, "EMPTY_QUESTION", "问题内容为空")
	ErrInvalidSQL     = NewAgentError(ErrorTypeValidation, "INVALID_SQL", "SQL 语句无效")
	ErrTableNotFound  = NewAgentError(ErrorTypeSchema, "TABLE_NOT_FOUND", "表不存在")
	ErrColumnNotFound = NewAgentError(ErrorTypeSchema, "COLUMN_NOT_FOUND", "列不存在")
	ErrDatabaseQuery  = NewAgentError(ErrorTypeDatabase, "DB_QUERY_FAILED", "数据库查询失败")
	ErrLLMUnavailable = NewAgentError(ErrorTypeLLM, "LLM_UNAVAILABLE", "生成式协作者不可用")
	ErrLLMNoSQL       = NewAgentError(ErrorTypeLLM, "LLM_NO_SQL", "生成式响应中提取不到 SQL")
	ErrRepairExhausted = NewAgentError(ErrorTypeDatabase, "REPAIR_EXHAUSTED", "自动修复重试已用尽")
)

// IsAgentError 检查是否为结构化错误
func IsAgentError(err error) bool {
	var agentErr *AgentError
	return errors.As(err, &agentErr)
}

// GetAgentError 获取结构化错误，不是则返回 nil
func GetAgentError(err error) *AgentError {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr
	}
	return nil
}

// WrapError 包装普通错误为结构化错误
func WrapError(err error, errorType ErrorType, code, message string) *AgentError {
	return &AgentError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
	}
}
