package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"ncmc/logger"
	"ncmc/storage"
)

// MediaHandler 从媒体存储读取解码后的音频，支持 Range（底层对象可 Seek 时）
type MediaHandler struct {
	sink storage.Sink
}

// NewMediaHandler 创建 MediaHandler 实例
func NewMediaHandler(sink storage.Sink) *MediaHandler {
	return &MediaHandler{sink: sink}
}

// ServeHTTP 实现 http.Handler 接口，路径已去掉媒体前缀
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	object, info, err := h.sink.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		logger.Warn("读取媒体失败", logger.String("key", key), logger.ErrorField(err))
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", info.ContentType)
	// key 以内容哈希为目录，内容不会变化
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if rs, ok := object.(io.ReadSeeker); ok {
		http.ServeContent(w, r, info.Key, info.LastModified, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, object); err != nil {
		logger.Error("Error serving media", logger.String("key", key), logger.ErrorField(err))
	}
}
