package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"StudioFM/core/artwork"
	"StudioFM/core/content"
	"StudioFM/core/hub"
	"StudioFM/core/tab"
	"StudioFM/logger"
	"StudioFM/repository"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Artwork 封面接口，*artwork.Extractor 满足该接口
type Artwork interface {
	Extract(ctx context.Context, audioURL string) (string, bool)
	Peek(audioURL string) (artwork.Entry, bool)
	ClearCache()
}

// Deps 服务依赖。Subscribers 与 Assets 可以为空。
type Deps struct {
	Tabs        *tab.Manager
	Content     *content.Service
	Artwork     Artwork
	Hub         *hub.Hub
	Subscribers repository.SubscriberRepository
	Assets      http.Handler

	SessionSecret []byte
	SessionTTL    time.Duration
	SecureCookie  bool
}

// Server HTTP 入口：/v1 接口加资产缓存兜底
type Server struct {
	tabs        *tab.Manager
	content     *content.Service
	artwork     Artwork
	hub         *hub.Hub
	subscribers repository.SubscriberRepository
	assets      http.Handler

	secret       []byte
	sessionTTL   time.Duration
	secureCookie bool
	now          func() time.Time

	// background 执行与请求解耦的任务，测试中替换为同步执行
	background func(func())
	upgrader   websocket.Upgrader
}

// New 创建服务
func New(d Deps) *Server {
	s := &Server{
		tabs:         d.Tabs,
		content:      d.Content,
		artwork:      d.Artwork,
		hub:          d.Hub,
		subscribers:  d.Subscribers,
		assets:       d.Assets,
		secret:       d.SessionSecret,
		sessionTTL:   d.SessionTTL,
		secureCookie: d.SecureCookie,
		now:          time.Now,
		background:   func(f func()) { go f() },
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 24 * time.Hour
	}
	if s.assets == nil {
		s.assets = http.NotFoundHandler()
	}
	return s
}

// Handler 构建路由
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(s.sessionMiddleware)

	// 内容
	api.HandleFunc("/content/playlists/{source}", s.handleContentPlaylist).Methods(http.MethodGet)
	api.HandleFunc("/content/tracks/{id}", s.handleContentTrack).Methods(http.MethodGet)
	api.HandleFunc("/subscribe", s.handleSubscribe).Methods(http.MethodPost)

	// 播放器
	api.HandleFunc("/player", s.handlePlayerState).Methods(http.MethodGet)
	api.HandleFunc("/player/load", s.handleLoad).Methods(http.MethodPost)
	api.HandleFunc("/player/radio", s.handleEnterRadio).Methods(http.MethodPost)
	api.HandleFunc("/player/radio", s.handleExitRadio).Methods(http.MethodDelete)
	api.HandleFunc("/player/play-at", s.handlePlayAt).Methods(http.MethodPost)
	api.HandleFunc("/player/seek", s.handleSeek).Methods(http.MethodPost)
	api.HandleFunc("/player/duration", s.handleDuration).Methods(http.MethodPost)
	api.HandleFunc("/player/shuffle", s.handleShuffle).Methods(http.MethodPost)
	api.HandleFunc("/player/upcoming", s.handleUpcoming).Methods(http.MethodGet)
	api.HandleFunc("/player/{action:next|previous|ended|play|pause|show|hide|minimize|expand|close}", s.handlePlayerAction).Methods(http.MethodPost)

	// 会话歌单
	api.HandleFunc("/session/playlist", s.handleSessionPlaylist).Methods(http.MethodGet)
	api.HandleFunc("/session/playlist", s.handleSessionAdd).Methods(http.MethodPost)
	api.HandleFunc("/session/playlist", s.handleSessionClear).Methods(http.MethodDelete)
	api.HandleFunc("/session/playlist/play", s.handleSessionPlay).Methods(http.MethodPost)
	api.HandleFunc("/session/playlist/{id}", s.handleSessionRemove).Methods(http.MethodDelete)

	// 试听
	api.HandleFunc("/previews/{id}/play", s.handlePreviewPlay).Methods(http.MethodPost)
	api.HandleFunc("/previews/{id}/pause", s.handlePreviewPause).Methods(http.MethodPost)
	api.HandleFunc("/previews/{id}", s.handlePreviewClose).Methods(http.MethodDelete)

	// 封面
	api.HandleFunc("/artwork", s.handleArtwork).Methods(http.MethodGet)
	api.HandleFunc("/artwork", s.handleArtworkClear).Methods(http.MethodDelete)

	// 媒体控制面
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	// 其余请求交给资产缓存层
	router.NotFoundHandler = s.assets

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(cors(router))
}

// cors 包在路由之外，预检请求不经过路由匹配
func cors(next http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Range"}),
		handlers.ExposedHeaders([]string{"Content-Length", "Content-Range", "X-Asset-Cache"}),
		handlers.MaxAge(86400), // 24 hours
	)(next)
}

// recoveryLogger 把 panic 信息写入 zap
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	logger.Error("请求处理发生 panic", logger.String("detail", fmt.Sprint(v...)))
}

// Run 启动监听，ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// 写超时为 0：WebSocket 连接与回源响应可能持续很久
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务启动", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("正在关闭 HTTP 服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP 服务已停止")
	return nil
}
