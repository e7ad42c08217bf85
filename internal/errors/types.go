package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// 检索配置错误（请求级致命，不重试）
	ErrCodeTableNotFound     ErrorCode = "TABLE_NOT_FOUND"
	ErrCodeDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"

	// 外部服务错误（瞬时，可有界重试）
	ErrCodeEmbeddingProvider ErrorCode = "EMBEDDING_PROVIDER_ERROR"
	ErrCodeGeneration        ErrorCode = "GENERATION_ERROR"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"

	// 多表扇出部分失败（降级，不中断请求）
	ErrCodePartialFanout ErrorCode = "PARTIAL_FANOUT"

	// 数据库错误
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
// Stage/Table/RequestID 用于从日志还原失败现场
type AppError struct {
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Type      ErrorType   `json:"type"`
	HTTPCode  int         `json:"-"`
	Details   interface{} `json:"details,omitempty"`
	Cause     error       `json:"-"`
	RequestID string      `json:"request_id,omitempty"`
	Stage     string      `json:"stage,omitempty"`
	Table     string      `json:"table,omitempty"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithRequestID 添加请求ID
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithStage 标记失败阶段（embed/search/merge/synthesize/ingest）
func (e *AppError) WithStage(stage string) *AppError {
	e.Stage = stage
	return e
}

// WithTable 标记涉及的逻辑表
func (e *AppError) WithTable(table string) *AppError {
	e.Table = table
	return e
}

// Retryable 是否为瞬时错误（可有界重试）
// 配置类错误（表不存在、维度不匹配）与输入错误永不重试
func (e *AppError) Retryable() bool {
	switch e.Code {
	case ErrCodeEmbeddingProvider, ErrCodeGeneration, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// 错误构造函数

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewInvalidInputError 创建输入无效错误（空文本、非法请求参数）
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewTableNotFoundError 创建表不存在错误
func NewTableNotFoundError(table string) *AppError {
	return &AppError{
		Code:     ErrCodeTableNotFound,
		Message:  fmt.Sprintf("table '%s' not found", table),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
		Table:    table,
	}
}

// NewDimensionMismatchError 创建向量维度不匹配错误
func NewDimensionMismatchError(table string, want, got int) *AppError {
	return &AppError{
		Code:     ErrCodeDimensionMismatch,
		Message:  fmt.Sprintf("embedding dimension mismatch for table '%s': want %d, got %d", table, want, got),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusBadRequest,
		Table:    table,
	}
}

// NewEmbeddingProviderError 创建向量化服务错误
func NewEmbeddingProviderError(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeEmbeddingProvider,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
		Cause:    cause,
		Stage:    "embed",
	}
}

// NewGenerationError 创建答案生成服务错误
func NewGenerationError(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeGeneration,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
		Cause:    cause,
		Stage:    "synthesize",
	}
}

// NewPartialFanoutError 创建扇出部分失败错误（携带被跳过的表）
func NewPartialFanoutError(skippedTables []string) *AppError {
	return &AppError{
		Code:     ErrCodePartialFanout,
		Message:  fmt.Sprintf("%d table(s) skipped during fan-out", len(skippedTables)),
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusOK,
		Details:  skippedTables,
		Stage:    "search",
	}
}

// NewDatabaseError 创建数据库错误
func NewDatabaseError(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeDatabaseError,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// IsAppError 检查是否为AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "internal server error").WithCause(err)
}

// IsRetryable 判断任意error是否可重试
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Retryable()
	}
	return false
}
