package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ncmc/core/playback"
	"ncmc/core/session"
	"ncmc/logger"
	"ncmc/model"
)

const (
	maxDropBytes   = 1 << 30 // 单次拖放上限
	multipartInMem = 32 << 20
)

type ctxKey int

const entryKey ctxKey = iota

// requireSession 校验令牌并把会话放进请求上下文。
// 令牌来自 Authorization: Bearer 头或 token 查询参数（websocket 无法设置头）。
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		token := r.URL.Query().Get("token")
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}
			token = parts[1]
		}
		if token == "" {
			http.Error(w, "Session token is required", http.StatusUnauthorized)
			return
		}
		if err := s.signer.Authorize(token, id); err != nil {
			logger.Warn("会话令牌无效", logger.String("session", id), logger.ErrorField(err))
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		e, err := s.sessions.Get(id)
		if err != nil {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), entryKey, e)))
	}
}

func entryFromContext(ctx context.Context) *entry {
	e, _ := ctx.Value(entryKey).(*entry)
	return e
}

// CreateSessionHandler POST /api/sessions
func (s *Server) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	e, err := s.sessions.Create()
	if err != nil {
		logger.Error("创建会话失败", logger.ErrorField(err))
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	token, err := s.signer.GenerateToken(e.sess.ID)
	if err != nil {
		s.sessions.Remove(e.sess.ID)
		logger.Error("生成令牌失败", logger.ErrorField(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: e.sess.ID, Token: token})
}

// DeleteSessionHandler DELETE /api/sessions/{id}
func (s *Server) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	e := entryFromContext(r.Context())
	s.sessions.Remove(e.sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

// TracksHandler GET /api/sessions/{id}/tracks 返回当前版本
func (s *Server) TracksHandler(w http.ResponseWriter, r *http.Request) {
	e := entryFromContext(r.Context())
	rev := e.sess.Snapshot()
	writeJSON(w, http.StatusOK, tracksMessage{
		Type:    "tracks",
		Version: rev.Version(),
		Total:   rev.Len(),
		Tracks:  views(rev.Tracks()),
	})
}

// DropHandler POST /api/sessions/{id}/drop，multipart 字段 files
func (s *Server) DropHandler(w http.ResponseWriter, r *http.Request) {
	e := entryFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxDropBytes)
	if err := r.ParseMultipartForm(multipartInMem); err != nil {
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]model.File, 0, len(headers))
	for _, fh := range headers {
		f, err := saveUpload(e.uploadDir, fh)
		if err != nil {
			logger.Error("保存上传文件失败",
				logger.String("session", e.sess.ID),
				logger.String("file", fh.Filename),
				logger.ErrorField(err))
			http.Error(w, "Failed to save upload", http.StatusInternalServerError)
			return
		}
		files = append(files, f)
	}

	ids, err := e.sess.Drop(r.Context(), files)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrClosed) {
			status = http.StatusGone
		}
		http.Error(w, err.Error(), status)
		return
	}
	if ids == nil {
		ids = []int{}
	}
	writeJSON(w, http.StatusAccepted, dropResponse{IDs: ids, Ignored: len(files) - len(ids)})
}

// PlayHandler POST /api/sessions/{id}/play/{track}，与 websocket 的 play 消息等价
func (s *Server) PlayHandler(w http.ResponseWriter, r *http.Request) {
	e := entryFromContext(r.Context())
	id, err := strconv.Atoi(mux.Vars(r)["track"])
	if err != nil {
		http.Error(w, "Invalid track id", http.StatusBadRequest)
		return
	}
	if e.sess.Snapshot().Get(id) == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	if err := e.sess.Play(r.Context(), id); err != nil {
		http.Error(w, err.Error(), playStatus(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func playStatus(err error) int {
	switch {
	case errors.Is(err, playback.ErrNotPlayable):
		return http.StatusConflict
	case errors.Is(err, playback.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

// saveUpload 以随机名保存，原始文件名只保留在 model.File.Name 中
func saveUpload(dir string, fh *multipart.FileHeader) (model.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return model.File{}, err
	}
	src, err := fh.Open()
	if err != nil {
		return model.File{}, err
	}
	defer src.Close()

	name := filepath.Base(fh.Filename)
	path := filepath.Join(dir, uuid.NewString()+filepath.Ext(name))
	dst, err := os.Create(path)
	if err != nil {
		return model.File{}, err
	}
	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return model.File{}, fmt.Errorf("write %s: %w", name, err)
	}
	return model.File{Name: name, Path: path, Size: size}, nil
}

func views(tracks []*model.Track) []model.View {
	out := make([]model.View, len(tracks))
	for i, t := range tracks {
		out[i] = model.NewView(t)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写响应失败", logger.ErrorField(err))
	}
}
