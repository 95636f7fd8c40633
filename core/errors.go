package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），对 fmt.Errorf("%w") 包装过的错误同样生效
//
// 错误分类：
//   - CONFIGURATION：未知策略、缺少必需超参数、不支持的系数形状
//   - DIMENSION：特征下标越界、行长度不一致
//   - INDEX：judgment 引用了不存在的行
//   - EMPTY_INPUT：没有可评估的有效 judgment
//   - SOLVER：外部优化器未收敛或超时且没有可行解
type DomainError struct {
	Code    string // 错误代码（如 "CONFIGURATION", "SOLVER"）
	Message string // 错误消息
	Module  string // 模块名称（如 "feature", "pairwise", "rank"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is 按 Code 比较，便于 errors.Is(err, core.ErrEmptyInput) 这种写法。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Module == "" || t.Module == e.Module)
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeConfiguration = "CONFIGURATION" // 配置错误
	ErrorCodeDimension     = "DIMENSION"     // 维度错误
	ErrorCodeIndex         = "INDEX"         // 行下标越界
	ErrorCodeEmptyInput    = "EMPTY_INPUT"   // 空输入
	ErrorCodeSolver        = "SOLVER"        // 求解器失败
	ErrorCodeNotFound      = "NOT_FOUND"     // 资源不存在
)

// 模块名称常量
const (
	ModuleFeature  = "feature"  // 特征模块
	ModulePairwise = "pairwise" // pairwise 规约
	ModuleRank     = "rank"     // 训练器
	ModuleArtifact = "artifact" // 权重产物
	ModuleEval     = "eval"     // 评估
	ModuleSolver   = "solver"   // 求解器
	ModuleStore    = "store"    // 存储模块
	ModuleConfig   = "config"   // 配置模块
)

// 哨兵错误，只用于 errors.Is 比较（Module 为空表示匹配任意模块）。
var (
	ErrConfiguration = &DomainError{Code: ErrorCodeConfiguration, Message: "configuration error"}
	ErrDimension     = &DomainError{Code: ErrorCodeDimension, Message: "dimension error"}
	ErrIndex         = &DomainError{Code: ErrorCodeIndex, Message: "index error"}
	ErrEmptyInput    = &DomainError{Code: ErrorCodeEmptyInput, Message: "empty input"}
	ErrSolver        = &DomainError{Code: ErrorCodeSolver, Message: "solver error"}
)

// ConfigurationError 构造 CONFIGURATION 错误
func ConfigurationError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeConfiguration, fmt.Sprintf(format, args...))
}

// DimensionError 构造 DIMENSION 错误
func DimensionError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeDimension, fmt.Sprintf(format, args...))
}

// IndexError 构造 INDEX 错误
func IndexError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeIndex, fmt.Sprintf(format, args...))
}

// EmptyInputError 构造 EMPTY_INPUT 错误
func EmptyInputError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeEmptyInput, fmt.Sprintf(format, args...))
}

// SolverError 构造 SOLVER 错误
func SolverError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeSolver, fmt.Sprintf(format, args...))
}

// ErrorCode 返回错误代码；非 DomainError 返回空串（用于监控打点）。
func ErrorCode(err error) string {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code
	}
	return ""
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsConfiguration 检查错误是否为 CONFIGURATION
func IsConfiguration(err error) bool { return hasCode(err, ErrorCodeConfiguration) }

// IsDimension 检查错误是否为 DIMENSION
func IsDimension(err error) bool { return hasCode(err, ErrorCodeDimension) }

// IsIndex 检查错误是否为 INDEX
func IsIndex(err error) bool { return hasCode(err, ErrorCodeIndex) }

// IsEmptyInput 检查错误是否为 EMPTY_INPUT
func IsEmptyInput(err error) bool { return hasCode(err, ErrorCodeEmptyInput) }

// IsSolver 检查错误是否为 SOLVER
func IsSolver(err error) bool { return hasCode(err, ErrorCodeSolver) }

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }
