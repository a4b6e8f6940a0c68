package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ncmc/cache"
	"ncmc/config"
	"ncmc/core/auth"
	"ncmc/core/worker"
	"ncmc/logger"
	"ncmc/storage"
)

const reapInterval = time.Minute

// Server HTTP 接口: 会话、拖放上传、websocket 通道和媒体文件
type Server struct {
	cfg      *config.Config
	sink     storage.Sink
	signer   *auth.Signer
	sessions *Manager
}

// New 组装服务，resultCache 可以为 nil
func New(cfg *config.Config, sink storage.Sink, resultCache cache.ResultCache) (*Server, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		// 未配置时每次启动随机生成，重启后旧令牌失效
		secret = uuid.NewString()
		logger.Warn("JWT_SECRET 未设置，使用随机密钥")
	}
	signer, err := auth.NewSigner(secret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	opts := worker.Options{
		Workers: cfg.DecodeWorkers,
		Sink:    sink,
		Cache:   resultCache,
	}
	return &Server{
		cfg:      cfg,
		sink:     sink,
		signer:   signer,
		sessions: NewManager(opts, cfg.DecodeTimeout, cfg.UploadDir),
	}, nil
}

// Router 构建路由
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.CreateSessionHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.requireSession(s.DeleteSessionHandler)).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/tracks", s.requireSession(s.TracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/drop", s.requireSession(s.DropHandler)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/play/{track:[0-9]+}", s.requireSession(s.PlayHandler)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/ws", s.requireSession(s.SessionSocketHandler)).Methods(http.MethodGet)

	router.PathPrefix(s.cfg.MediaURLPrefix).Handler(
		http.StripPrefix(s.cfg.MediaURLPrefix, NewMediaHandler(s.sink))).
		Methods(http.MethodGet, http.MethodHead)

	router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.WebAppDir)))

	// 包在路由外层，预检请求不需要匹配到具体方法
	return corsMiddleware(router)
}

// Start 启动服务并阻塞到收到退出信号
func (s *Server) Start() error {
	if err := os.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
		return err
	}

	server := &http.Server{
		Addr:        s.cfg.HTTPAddr,
		Handler:     s.Router(),
		ReadTimeout: 5 * time.Minute, // 上传可能很大
		IdleTimeout: 120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	reapDone := make(chan struct{})
	go s.reapLoop(reapDone)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动",
			logger.String("addr", s.cfg.HTTPAddr),
			logger.String("media", s.cfg.MediaBackend),
			logger.Int("workers", s.cfg.DecodeWorkers))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var err error
	select {
	case <-stop:
		logger.Info("正在关闭服务...")
	case err = <-errCh:
		logger.Error("服务异常退出", logger.ErrorField(err))
	}
	close(reapDone)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(ctx); shutdownErr != nil {
		logger.Error("服务强制关闭", logger.ErrorField(shutdownErr))
	}
	s.sessions.CloseAll()

	logger.Info("服务已停止")
	return err
}

func (s *Server) reapLoop(done <-chan struct{}) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := s.sessions.Reap(now, s.cfg.SessionTTL); n > 0 {
				logger.Info("回收过期会话", logger.Int("count", n))
			}
		case <-done:
			return
		}
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Content-Disposition")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
