package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCodeMethodNotAllow ErrorCode = "METHOD_NOT_ALLOWED"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// DataResponse — тело успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — тело ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total,omitempty"`
}

// apiError — ошибка, которую клиент видит как есть.
// Всё остальное, что вернул обработчик, уходит клиенту как 500.
type apiError struct {
	status  int
	code    ErrorCode
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.status, e.code, e.message)
}

func badRequest(format string, args ...any) error {
	return &apiError{http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf(format, args...)}
}

func notFound(message string) error {
	return &apiError{http.StatusNotFound, ErrCodeNotFound, message}
}

// handlerFunc — обработчик, который возвращает ошибку вместо того,
// чтобы писать её в ответ сам.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap превращает handlerFunc в http.HandlerFunc.
func (h *Handler) wrap(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.writeError(w, r, err)
		}
	}
}

// writeError пишет ошибку в ответ. Внутренние ошибки логируются,
// клиенту уходит только request_id.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	detail := ErrorDetail{RequestID: middleware.GetReqID(r.Context())}
	status := http.StatusInternalServerError

	var ae *apiError
	if errors.As(err, &ae) {
		status, detail.Code, detail.Message = ae.status, ae.code, ae.message
	} else {
		h.logger.Error("internal error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", detail.RequestID),
			zap.Error(err),
		)
		detail.Code, detail.Message = ErrCodeInternalError, "internal server error"
	}

	writeJSON(w, status, ErrorResponse{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Заголовок уже отправлен: ошибку кодирования сообщить некому.
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) error {
	writeJSON(w, status, DataResponse{Data: data})
	return nil
}

func writeList(w http.ResponseWriter, data any, total int) error {
	writeJSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
	return nil
}
