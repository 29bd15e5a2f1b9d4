package server

import (
	"context"
	"net/http"

	"StudioFM/core/auth"
	"StudioFM/logger"
)

type ctxKey int

const sessionKey ctxKey = iota

// sessionMiddleware 校验 sid cookie，缺失或无效时签发新会话
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		if c, err := r.Cookie(auth.CookieName); err == nil {
			if id, err := auth.ParseSessionToken(s.secret, c.Value); err == nil {
				sessionID = id
			} else {
				logger.Debug("会话令牌无效，重新签发", logger.ErrorField(err))
			}
		}

		if sessionID == "" {
			sessionID = auth.NewSessionID()
			token, err := auth.IssueSessionToken(s.secret, sessionID, s.sessionTTL, s.now())
			if err != nil {
				logger.Error("签发会话令牌失败", logger.ErrorField(err))
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     auth.CookieName,
				Value:    token,
				Path:     "/",
				MaxAge:   int(s.sessionTTL.Seconds()),
				HttpOnly: true,
				Secure:   s.secureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), sessionKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionIDFromContext 取出中间件写入的会话 id
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey).(string)
	return id, ok && id != ""
}
