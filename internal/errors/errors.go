package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006
	ErrNotImplemented   ErrorCode = 1007

	// 游戏错误 (2000-2999)
	ErrGameNotFound        ErrorCode = 2000
	ErrGameAlreadyStarted  ErrorCode = 2001
	ErrInsufficientCoins   ErrorCode = 2002
	ErrPlayerNotInGame     ErrorCode = 2003
	ErrInvalidTurnState    ErrorCode = 2004
	ErrNotPlayerTurn       ErrorCode = 2005
	ErrInvalidReveal       ErrorCode = 2006
	ErrUnsupportedAction   ErrorCode = 2007
	ErrDeckExhausted       ErrorCode = 2008
	ErrGameFull            ErrorCode = 2009
	ErrNotEnoughPlayers    ErrorCode = 2010
	ErrInvalidTarget       ErrorCode = 2011
	ErrInvalidExchange     ErrorCode = 2012
	ErrPlayerAlreadyInGame ErrorCode = 2013
	ErrNotHost             ErrorCode = 2014
	ErrForcedCoup          ErrorCode = 2015

	// 通信错误 (4000-4999)
	ErrWebSocketConnect ErrorCode = 4000
	ErrWebSocketSend    ErrorCode = 4001
	ErrWebSocketReceive ErrorCode = 4002
	ErrWebSocketClosed  ErrorCode = 4003
	ErrBrokerConnect    ErrorCode = 4004
	ErrBrokerPublish    ErrorCode = 4005
	ErrBrokerSubscribe  ErrorCode = 4006
	ErrMessageFormat    ErrorCode = 4007

	// 存储错误 (5000-5999)
	ErrDatabaseConnect  ErrorCode = 5000
	ErrDatabaseQuery    ErrorCode = 5001
	ErrDatabaseInsert   ErrorCode = 5002
	ErrDatabaseUpdate   ErrorCode = 5003
	ErrDatabaseDelete   ErrorCode = 5004
	ErrTransaction      ErrorCode = 5005
	ErrDataIntegrity    ErrorCode = 5006
	ErrCacheUnavailable ErrorCode = 5007

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// 安全错误 (7000-7999)
	ErrAuthentication    ErrorCode = 7000
	ErrAuthorization     ErrorCode = 7001
	ErrTokenExpired      ErrorCode = 7002
	ErrTokenInvalid      ErrorCode = 7003
	ErrRateLimitExceeded ErrorCode = 7004
	ErrSessionNotFound   ErrorCode = 7005
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",
	ErrNotImplemented:   "功能未实现",

	// 游戏错误
	ErrGameNotFound:        "对局不存在",
	ErrGameAlreadyStarted:  "对局已经开始",
	ErrInsufficientCoins:   "金币不足",
	ErrPlayerNotInGame:     "玩家不在对局中",
	ErrInvalidTurnState:    "当前回合状态不允许该操作",
	ErrNotPlayerTurn:       "当前不是该玩家行动",
	ErrInvalidReveal:       "无效的亮牌",
	ErrUnsupportedAction:   "不支持的行动",
	ErrDeckExhausted:       "牌堆数量不足",
	ErrGameFull:            "对局人数已满",
	ErrNotEnoughPlayers:    "玩家人数不足",
	ErrInvalidTarget:       "无效的目标玩家",
	ErrInvalidExchange:     "无效的换牌选择",
	ErrPlayerAlreadyInGame: "玩家已在对局中",
	ErrNotHost:             "只有房主可以执行该操作",
	ErrForcedCoup:          "金币达到上限，必须发动政变",

	// 通信错误
	ErrWebSocketConnect: "WebSocket连接失败",
	ErrWebSocketSend:    "WebSocket发送失败",
	ErrWebSocketReceive: "WebSocket接收失败",
	ErrWebSocketClosed:  "WebSocket连接已关闭",
	ErrBrokerConnect:    "消息总线连接失败",
	ErrBrokerPublish:    "消息发布失败",
	ErrBrokerSubscribe:  "消息订阅失败",
	ErrMessageFormat:    "消息格式错误",

	// 存储错误
	ErrDatabaseConnect:  "数据库连接失败",
	ErrDatabaseQuery:    "数据库查询失败",
	ErrDatabaseInsert:   "数据库插入失败",
	ErrDatabaseUpdate:   "数据库更新失败",
	ErrDatabaseDelete:   "数据库删除失败",
	ErrTransaction:      "事务处理失败",
	ErrDataIntegrity:    "数据完整性错误",
	ErrCacheUnavailable: "缓存不可用",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",

	// 安全错误
	ErrAuthentication:    "认证失败",
	ErrAuthorization:     "授权失败",
	ErrTokenExpired:      "令牌已过期",
	ErrTokenInvalid:      "无效的令牌",
	ErrRateLimitExceeded: "请求频率超限",
	ErrSessionNotFound:   "会话不存在",
}

// 错误码到客户端可识别的错误类型
var errorKinds = map[ErrorCode]string{
	ErrInvalidParam:        "InvalidParam",
	ErrNotFound:            "NotFound",
	ErrGameNotFound:        "GameNotFound",
	ErrGameAlreadyStarted:  "GameAlreadyStarted",
	ErrInsufficientCoins:   "InsufficientCoins",
	ErrPlayerNotInGame:     "PlayerNotInGame",
	ErrInvalidTurnState:    "InvalidTurnState",
	ErrNotPlayerTurn:       "NotPlayerTurn",
	ErrInvalidReveal:       "InvalidReveal",
	ErrUnsupportedAction:   "UnsupportedAction",
	ErrDeckExhausted:       "DeckExhausted",
	ErrGameFull:            "GameFull",
	ErrNotEnoughPlayers:    "NotEnoughPlayers",
	ErrInvalidTarget:       "InvalidTarget",
	ErrInvalidExchange:     "InvalidExchange",
	ErrPlayerAlreadyInGame: "PlayerAlreadyInGame",
	ErrNotHost:             "NotHost",
	ErrForcedCoup:          "ForcedCoup",
	ErrMessageFormat:       "MessageFormat",
	ErrAuthentication:      "Unauthenticated",
	ErrTokenExpired:        "TokenExpired",
	ErrTokenInvalid:        "TokenInvalid",
	ErrSessionNotFound:     "SessionNotFound",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// Kind 返回错误类型名称
func (e *AppError) Kind() string {
	if kind, ok := errorKinds[e.Code]; ok {
		return kind
	}
	return "Internal"
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := As(err); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// As 从错误链中提取AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := As(err); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// Kind 获取错误类型名称
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind()
	}
	return "Internal"
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/Taiters/coup-clone/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam, e.Code == ErrMessageFormat:
		return 400 // Bad Request
	case e.Code == ErrNotFound, e.Code == ErrGameNotFound:
		return 404 // Not Found
	case e.Code == ErrPermissionDenied, e.Code == ErrNotHost:
		return 403 // Forbidden
	case e.Code == ErrTimeout:
		return 408 // Request Timeout
	case e.Code == ErrDeckExhausted:
		return 500 // 数据不变量被破坏
	case e.Code >= 2000 && e.Code <= 2999:
		return 409 // Conflict
	case e.Code >= 7000 && e.Code <= 7003, e.Code == ErrSessionNotFound:
		return 401 // Unauthorized
	case e.Code == ErrRateLimitExceeded:
		return 429 // Too Many Requests
	case e.Code >= 5000 && e.Code <= 5999:
		return 503 // Service Unavailable
	default:
		return 500 // Internal Server Error
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrTimeout,
		ErrWebSocketConnect,
		ErrBrokerConnect,
		ErrDatabaseConnect,
		ErrCacheUnavailable:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrDatabaseConnect,
		ErrDeckExhausted,
		ErrConfigLoad,
		ErrConfigMissing,
		ErrDataIntegrity:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Kind      string    `json:"kind,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	resp := &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
	if err != nil {
		resp.Kind = err.Kind()
		resp.Retryable = IsRetryable(err)
	}
	return resp
}
