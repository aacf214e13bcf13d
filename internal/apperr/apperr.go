package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// 錯誤代碼常數，對應服務邊界回傳的機器可讀代碼
const (
	CodeConfiguration       = "configuration_error"
	CodeValidation          = "validation_error"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeInvalidOutput       = "invalid_output"
	CodeSchemaViolation     = "schema_violation"
	CodePersistence         = "persistence_error"
	CodeInternal            = "internal_error"
)

// Error 是跨越服務邊界前的統一錯誤家族：
// 帶有 HTTP 狀態碼、機器可讀代碼與可對外揭露的訊息。
// 內部診斷細節 (原始上游回應、堆疊) 只記錄在伺服器端日誌，不放進 Message。
// Details 僅用於驗證錯誤的欄位層級細節，那是唯一可安全回傳給客戶端的部分。
type Error struct {
	Status  int
	Code    string
	Message string
	Details interface{}
	Err     error
}

// Error 實現 error 介面
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 讓 errors.Is / errors.As 可以沿著包裝鏈查找
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfiguration 建立啟動期設定錯誤 (致命，程序不得開始服務)
func NewConfiguration(message string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: CodeConfiguration, Message: message}
}

// NewValidation 建立客戶端輸入錯誤，details 為欄位層級的違規清單
func NewValidation(message string, details interface{}) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: message, Details: details}
}

// NewUpstream 建立上游 (生成或向量化) 協作者錯誤。
// code 區分三種情況：服務不可用、輸出無法解析、輸出違反結構約定，
// 三者的運維補救手段不同，但對客戶端一律是 502。
func NewUpstream(code string, message string, err error) *Error {
	return &Error{Status: http.StatusBadGateway, Code: code, Message: message, Err: err}
}

// NewPersistence 建立持久層讀寫錯誤 (與「查無資料」是不同的情況)
func NewPersistence(message string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodePersistence, Message: message, Err: err}
}

// From 將任意錯誤正規化為 *Error；
// 未知的錯誤一律視為內部錯誤，避免細節外洩。
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "內部伺服器錯誤", Err: err}
}
