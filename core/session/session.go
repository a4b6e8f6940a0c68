// Package session 管线的持有者: 一个会话拥有自己的曲目版本、解码 worker、
// 播放协调器订阅和唯一的事件循环。只有事件循环会产生新版本。
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ncmc/core/ingest"
	"ncmc/core/playback"
	"ncmc/core/store"
	"ncmc/core/worker"
	"ncmc/logger"
	"ncmc/model"
)

// ErrClosed 会话已关闭
var ErrClosed = errors.New("session: closed")

const (
	renderTimeout = 5 * time.Second
	minSweep      = time.Second
)

// Options 会话配置
type Options struct {
	Worker  worker.Options
	Timeout time.Duration // 字段超时，0 表示不超时
	Player  playback.Player
	Bus     *playback.Coordinator // 为空时新建
	Clock   func() time.Time
}

// Session 一次拖放页面（或一次命令行运行）对应的管线
type Session struct {
	ID        string
	CreatedAt time.Time

	current atomic.Pointer[store.Store]
	worker  *worker.Worker
	bus     *playback.Coordinator
	sub     *playback.Subscription
	player  playback.Player
	ingest  *ingest.Controller
	timeout time.Duration
	clock   func() time.Time

	drops chan dropRequest
	plays chan playRequest

	watchMu  sync.Mutex
	watchers map[int]chan *store.Store
	nextW    int

	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

type dropRequest struct {
	files []model.File
	reply chan dropResult
}

type dropResult struct {
	ids []int
	err error
}

type playRequest struct {
	id    int
	reply chan error
}

// New 构造并启动会话
func New(opts Options) (*Session, error) {
	bus := opts.Bus
	if bus == nil {
		bus = playback.NewCoordinator()
	}
	sub, err := bus.Subscribe()
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: clock(),
		worker:    worker.New(opts.Worker),
		bus:       bus,
		sub:       sub,
		player:    opts.Player,
		timeout:   opts.Timeout,
		clock:     clock,
		drops:     make(chan dropRequest),
		plays:     make(chan playRequest),
		watchers:  make(map[int]chan *store.Store),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	s.current.Store(store.New().WithClock(clock))
	s.ingest = &ingest.Controller{Store: owner{s}, Dispatch: s.worker}

	go s.loop()

	logger.Info("会话已创建",
		logger.String("session", s.ID),
		logger.Int("workers", opts.Worker.Workers))
	return s, nil
}

// Snapshot 当前版本，只读
func (s *Session) Snapshot() *store.Store {
	return s.current.Load()
}

// Drop 一次拖放手势，返回分配的 id
func (s *Session) Drop(ctx context.Context, files []model.File) ([]int, error) {
	req := dropRequest{files: files, reply: make(chan dropResult, 1)}
	select {
	case s.drops <- req:
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	res := <-req.reply
	return res.ids, res.err
}

// Play 以卡片的身份请求播放 id 对应的曲目
func (s *Session) Play(ctx context.Context, id int) error {
	req := playRequest{id: id, reply: make(chan error, 1)}
	select {
	case s.plays <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Watch 订阅新版本。通道容量为 1，只保留最新版本；会话关闭时通道关闭。
func (s *Session) Watch() (<-chan *store.Store, func()) {
	ch := make(chan *store.Store, 1)
	s.watchMu.Lock()
	if s.watchers == nil {
		s.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextW
	s.nextW++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	cancel := func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
	}
	return ch, cancel
}

// Done 会话关闭后关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close 停止事件循环，同时释放 worker 和播放订阅。可重复调用。
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.loopDone

		s.worker.Terminate()
		s.sub.Unsubscribe()

		s.watchMu.Lock()
		for id, ch := range s.watchers {
			delete(s.watchers, id)
			close(ch)
		}
		s.watchers = nil
		s.watchMu.Unlock()

		logger.Info("会话已关闭",
			logger.String("session", s.ID),
			logger.Int("tracks", s.Snapshot().Len()))
	})
}

func (s *Session) loop() {
	defer close(s.loopDone)

	var sweep <-chan time.Time
	if s.timeout > 0 {
		interval := s.timeout / 4
		if interval < minSweep {
			interval = minSweep
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	completions := s.worker.Completions()
	requests := s.sub.Requests()
	for {
		select {
		case req := <-s.drops:
			ids, err := s.ingest.Drop(req.files)
			req.reply <- dropResult{ids: ids, err: err}

		case c, ok := <-completions:
			if !ok {
				completions = nil
				continue
			}
			s.merge(c)

		case req := <-s.plays:
			card := playback.Card{Track: s.Snapshot().Get(req.id), Bus: s.bus}
			req.reply <- card.Play()

		case url, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			s.switchSource(url)

		case <-sweep:
			s.expire()

		case <-s.done:
			return
		}
	}
}

func (s *Session) merge(c worker.Completion) {
	next, err := s.Snapshot().Merge(store.FromCompletion(c))
	if err != nil {
		logger.Warn("忽略完成事件",
			logger.String("session", s.ID),
			logger.Int("id", c.TrackID()),
			logger.String("type", string(c.Type())),
			logger.ErrorField(err))
		return
	}
	s.commit(next)
}

func (s *Session) expire() {
	next, ids := s.Snapshot().ExpirePending(s.clock(), s.timeout)
	if len(ids) == 0 {
		return
	}
	logger.Warn("解码超时",
		logger.String("session", s.ID),
		logger.Ints("ids", ids),
		logger.Duration("timeout", s.timeout))
	s.commit(next)
}

func (s *Session) switchSource(url string) {
	if s.player == nil {
		logger.Debug("没有播放器，忽略播放请求", logger.String("url", url))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()
	if err := playback.Switch(ctx, s.player, url); err != nil {
		logger.Warn("切换音源失败",
			logger.String("session", s.ID),
			logger.String("url", url),
			logger.ErrorField(err))
	}
}

// commit 发布新版本并通知观察者
func (s *Session) commit(next *store.Store) {
	if next == s.Snapshot() {
		return
	}
	s.current.Store(next)

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

// owner 让 ingest 在事件循环内追加并提交
type owner struct{ s *Session }

func (o owner) Append(files []model.File) []int {
	next, ids := o.s.Snapshot().Append(files)
	o.s.commit(next)
	return ids
}
