package generator

import (
	"errors"
	"fmt"
)

// ErrorKind 区分生成失败的原因。
type ErrorKind string

const (
	KindEmptyContent      ErrorKind = "empty_content"
	KindTooManyModels     ErrorKind = "too_many_models"
	KindNetwork           ErrorKind = "network_error"
	KindBackendRejected   ErrorKind = "backend_rejected"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// User-facing messages, one per kind.
const (
	MsgEmptyContent  = "请输入基本内容"
	MsgTooManyModels = "最多只能选择 3 个模型"
	MsgNetwork       = "网络错误，请检查后端服务是否启动"
	MsgRejected      = "生成失败，请重试"
	MsgAllFailed     = "所有模型均未返回结果，请重试"
	MsgMalformed     = "返回数据格式异常，请联系管理员"
)

// Sentinels for errors.Is; they match any GenerateError of the same kind.
var (
	ErrEmptyContent      = &GenerateError{Kind: KindEmptyContent}
	ErrNetwork           = &GenerateError{Kind: KindNetwork}
	ErrBackendRejected   = &GenerateError{Kind: KindBackendRejected}
	ErrMalformedResponse = &GenerateError{Kind: KindMalformedResponse}
)

var (
	// ErrBusy is returned when a generate is already in flight.
	ErrBusy = errors.New("generation already in progress")
	// ErrWrongPhase is returned for actions the current phase does not accept.
	ErrWrongPhase = errors.New("action not allowed in current phase")
	// ErrUnknownModel is returned when a model is not in the configured catalog.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNotFound is returned when the backend answers 404.
	ErrNotFound = errors.New("not found")
)

// GenerateError carries the kind, a message for the user and the cause.
type GenerateError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *GenerateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *GenerateError) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can use the package sentinels.
func (e *GenerateError) Is(target error) bool {
	t, ok := target.(*GenerateError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func networkError(err error) *GenerateError {
	return &GenerateError{Kind: KindNetwork, Message: MsgNetwork, Err: err}
}

func rejectedError(reason string, err error) *GenerateError {
	if reason == "" {
		reason = MsgRejected
	}
	return &GenerateError{Kind: KindBackendRejected, Message: reason, Err: err}
}

func malformedError(err error) *GenerateError {
	return &GenerateError{Kind: KindMalformedResponse, Message: MsgMalformed, Err: err}
}

// asGenerateError classifies anything returned by a Backend. Unknown errors
// are treated as transport failures.
func asGenerateError(err error) *GenerateError {
	var ge *GenerateError
	if errors.As(err, &ge) {
		return ge
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.generateError()
	}
	return networkError(err)
}
