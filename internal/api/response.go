package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"aegis-core/internal/auth"
	"aegis-core/internal/compliance"
	apperrors "aegis-core/internal/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// fail 输出统一的错误结构。500 只返回概要信息，细节写入日志。
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := classify(err)
	status := appErr.Status()
	requestID := requestIDFrom(r.Context())
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			"path", r.URL.Path,
			"status", status,
			"code", appErr.Code(),
			"request_id", requestID,
			"error", err,
		)
	}
	message := appErr.Message()
	if cause := errors.Unwrap(appErr); cause != nil && status != http.StatusInternalServerError {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:      string(appErr.Code()),
		Message:   message,
		RequestID: requestID,
	}})
}

// classify 将各子系统的哨兵错误归入统一错误码。
func classify(err error) *apperrors.Error {
	if appErr, ok := apperrors.From(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperrors.New(apperrors.CodeUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		return apperrors.New(apperrors.CodeUnauthorized, "invalid or missing bearer token")
	case errors.Is(err, auth.ErrUserExists):
		return apperrors.New(apperrors.CodeConflict, "username already taken")
	case errors.Is(err, auth.ErrEmptyPassword), errors.Is(err, auth.ErrEmptyUsername):
		return apperrors.New(apperrors.CodeInvalidArgument, err.Error())
	case errors.Is(err, compliance.ErrEntityExists):
		return apperrors.New(apperrors.CodeConflict, err.Error())
	}
	return apperrors.Wrap(apperrors.CodeUnknown, err, "internal error")
}

// decodeJSON 解析请求体，失败时返回 INVALID_ARGUMENT。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.New(apperrors.CodeInvalidArgument, "request body is empty")
		}
		return apperrors.Wrap(apperrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}
