// Package playback 在曲目卡片和唯一的播放器持有者之间传递播放请求。
package playback

import (
	"errors"
	"sync"

	"ncmc/logger"
)

var (
	ErrNoSubscriber      = errors.New("playback: no subscriber")
	ErrAlreadySubscribed = errors.New("playback: subscriber already active")
	ErrEmptyURL          = errors.New("playback: empty url")
	ErrBusy              = errors.New("playback: subscriber is not keeping up")
)

const requestBuffer = 8

// Coordinator 播放请求的发布/订阅通道，同一时刻最多一个订阅者
type Coordinator struct {
	mu  sync.RWMutex
	sub *Subscription
}

// Subscription 订阅者持有的句柄
type Subscription struct {
	c    *Coordinator
	ch   chan string
	once sync.Once
}

// NewCoordinator 创建协调器，由拥有播放器的一方显式构造并传递
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Subscribe 注册唯一的订阅者
func (c *Coordinator) Subscribe() (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil, ErrAlreadySubscribed
	}
	c.sub = &Subscription{c: c, ch: make(chan string, requestBuffer)}
	return c.sub, nil
}

// Publish 投递一个可播放的 url，不阻塞
func (c *Coordinator) Publish(url string) error {
	if url == "" {
		return ErrEmptyURL
	}

	// 发送期间持读锁，Unsubscribe 拿到写锁后不会再有新的请求进入
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sub == nil {
		return ErrNoSubscriber
	}
	select {
	case c.sub.ch <- url:
		return nil
	default:
		logger.Warn("播放请求被丢弃", logger.String("url", url))
		return ErrBusy
	}
}

// Subscribed 当前是否有订阅者
func (c *Coordinator) Subscribed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub != nil
}

// Requests 播放请求通道，Unsubscribe 后关闭
func (s *Subscription) Requests() <-chan string {
	return s.ch
}

// Unsubscribe 注销订阅，丢弃尚未读取的请求。可重复调用。
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.c.mu.Lock()
		defer s.c.mu.Unlock()
		if s.c.sub == s {
			s.c.sub = nil
		}
	drain:
		for {
			select {
			case <-s.ch:
			default:
				break drain
			}
		}
		close(s.ch)
	})
}
