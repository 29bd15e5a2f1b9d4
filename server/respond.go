package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"StudioFM/core/player"
	"StudioFM/core/queue"
	"StudioFM/core/session"
	"StudioFM/core/tab"
	"StudioFM/logger"
)

var errBadRequest = errors.New("bad request")

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

// writeError 按错误类型映射状态码
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("请求处理失败",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.ErrorField(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, queue.ErrIndexOutOfRange),
		errors.Is(err, session.ErrInvalidTrack):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound), errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrEmpty),
		errors.Is(err, queue.ErrNotDynamic),
		errors.Is(err, player.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var errNotFound = errors.New("not found")

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %q", errNotFound, what, id)
}

// decodeJSON 解析请求体，失败时包装为 400
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

// currentTab 当前请求所属的标签页
func (s *Server) currentTab(r *http.Request) *tab.Tab {
	id, _ := SessionIDFromContext(r.Context())
	return s.tabs.Get(r.Context(), id)
}
