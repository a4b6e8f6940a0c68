package worker

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"ncmc/cache"
	"ncmc/core/ncm"
	"ncmc/core/probe"
	"ncmc/logger"
	"ncmc/storage"
)

var errAbandoned = errors.New("worker: abandoned")

const cacheWriteTimeout = 5 * time.Second

// decode 处理单个文件: 缓存命中直接回放结果，否则解密、探测、上传。
// 每个字段一准备好就立即发出，顺序为 image、meta、url。
func (w *Worker) decode(it Item) error {
	hash, err := hashFile(it.File.Path)
	if err != nil {
		return err
	}

	if res := w.lookup(hash); res != nil {
		return w.replay(it.ID, res)
	}

	f, err := os.Open(it.File.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", it.File.Name, err)
	}
	defer f.Close()

	nf, err := ncm.Open(bufio.NewReader(f))
	if err != nil {
		return err
	}

	res := &cache.Result{}
	if cover := nf.Cover(); len(cover) > 0 {
		res.Image = dataURI(cover)
		if !w.emit(ImageCompletion{ID: it.ID, Image: res.Image}) {
			return errAbandoned
		}
	}

	format := nf.Format()
	if m := nf.Meta(); m != nil {
		meta := *m
		if meta.Format == "" {
			meta.Format = format
		}
		res.Meta = &meta
	}

	tmp, err := os.CreateTemp(w.opts.TempDir, "ncmc-audio-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, nf.Audio())
	if err != nil {
		return fmt.Errorf("decrypt audio: %w", err)
	}

	if res.Meta != nil && format == "mp3" && res.Meta.Duration == 0 {
		if _, err := tmp.Seek(0, io.SeekStart); err == nil {
			if d, err := probe.MP3Duration(tmp); err == nil {
				res.Meta.Duration = d.Milliseconds()
			}
		}
	}
	if res.Meta != nil {
		if !w.emit(MetaCompletion{ID: it.ID, Meta: res.Meta}) {
			return errAbandoned
		}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	res.Object = storage.MediaKey(hash, it.File.Name, format)
	res.URL, err = w.opts.Sink.Put(w.ctx, res.Object, tmp, size, storage.ContentType(res.Object))
	if err != nil {
		return err
	}
	if !w.emit(URLCompletion{ID: it.ID, URL: res.URL}) {
		return errAbandoned
	}

	w.store(hash, res)
	return nil
}

// lookup 缓存未命中、出错或对象已被清理时返回 nil
func (w *Worker) lookup(hash string) *cache.Result {
	if w.opts.Cache == nil {
		return nil
	}
	res, err := w.opts.Cache.Get(w.ctx, hash)
	if err != nil {
		logger.Warn("读取解码缓存失败", logger.String("hash", hash), logger.ErrorField(err))
		return nil
	}
	if res == nil {
		return nil
	}
	if _, err := w.opts.Sink.Stat(w.ctx, res.Object); err != nil {
		logger.Debug("缓存对象已失效", logger.String("object", res.Object), logger.ErrorField(err))
		return nil
	}
	return res
}

func (w *Worker) replay(id int, res *cache.Result) error {
	if res.Meta != nil && !w.emit(MetaCompletion{ID: id, Meta: res.Meta}) {
		return errAbandoned
	}
	if res.Image != "" && !w.emit(ImageCompletion{ID: id, Image: res.Image}) {
		return errAbandoned
	}
	if !w.emit(URLCompletion{ID: id, URL: res.URL}) {
		return errAbandoned
	}
	return nil
}

func (w *Worker) store(hash string, res *cache.Result) {
	if w.opts.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(w.ctx, cacheWriteTimeout)
	defer cancel()
	if err := w.opts.Cache.Set(ctx, hash, res); err != nil {
		logger.Warn("写入解码缓存失败", logger.String("hash", hash), logger.ErrorField(err))
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func dataURI(img []byte) string {
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}
