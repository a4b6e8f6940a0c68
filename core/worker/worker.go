package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"ncmc/cache"
	"ncmc/logger"
	"ncmc/storage"
)

// ErrTerminated Terminate 之后再投递请求
var ErrTerminated = errors.New("worker: terminated")

// Options 解码 worker 配置
type Options struct {
	Workers int               // 并发解码数量
	Sink    storage.Sink      // 解码后的音频写到这里
	Cache   cache.ResultCache // 可选，按内容哈希复用解码结果
	TempDir string            // 解密音频的临时目录，空则使用系统默认
}

// Worker 后台解码器。请求之间相互独立，完成事件通过 Completions 异步送出。
type Worker struct {
	opts Options

	jobs chan Item
	out  chan Completion

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	terminated bool
	feeders    sync.WaitGroup
	pool       sync.WaitGroup
	once       sync.Once
}

// New 创建并启动 worker
func New(opts Options) *Worker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		opts:   opts,
		jobs:   make(chan Item),
		out:    make(chan Completion, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	w.pool.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go w.run()
	}
	return w
}

// Post 投递一次拖放的解码请求，不会阻塞调用方
func (w *Worker) Post(req Request) error {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return ErrTerminated
	}
	w.feeders.Add(1)
	w.mu.Unlock()

	// 复制一份，调用方之后修改切片不影响 worker
	items := append([]Item(nil), req.Items...)
	go func() {
		defer w.feeders.Done()
		for _, it := range items {
			select {
			case w.jobs <- it:
			case <-w.ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Completions 完成事件通道，Terminate 后关闭
func (w *Worker) Completions() <-chan Completion {
	return w.out
}

// Terminate 放弃所有进行中的请求，不再产生任何完成事件，也不报告错误
func (w *Worker) Terminate() {
	w.once.Do(func() {
		w.mu.Lock()
		w.terminated = true
		w.mu.Unlock()

		w.cancel()
		w.feeders.Wait()
		w.pool.Wait()
		close(w.out)
	})
}

func (w *Worker) run() {
	defer w.pool.Done()
	for {
		select {
		case it := <-w.jobs:
			w.process(it)
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) process(it Item) {
	start := time.Now()
	err := w.decode(it)
	if w.ctx.Err() != nil {
		return
	}

	fin := FinishedCompletion{ID: it.ID}
	if err != nil {
		fin.Err = err.Error()
		logger.Warn("解码失败",
			logger.Int("id", it.ID),
			logger.String("file", it.File.Name),
			logger.ErrorField(err))
	} else {
		logger.Debug("解码完成",
			logger.Int("id", it.ID),
			logger.String("file", it.File.Name),
			logger.Duration("elapsed", time.Since(start)))
	}
	w.emit(fin)
}

// emit 在 worker 终止后丢弃事件
func (w *Worker) emit(c Completion) bool {
	if w.ctx.Err() != nil {
		return false
	}
	select {
	case w.out <- c:
		return true
	case <-w.ctx.Done():
		return false
	}
}
