package server

import (
	"context"
	"errors"
	"sync"
)

var errNoClient = errors.New("no websocket client attached")

// outbound 交给写协程的一条消息，written 在写完后收到结果
type outbound struct {
	msg     interface{}
	written chan error
}

// socketPlayer 把播放器操作转发给当前连接的页面
type socketPlayer struct {
	mu      sync.Mutex
	out     chan<- outbound
	pending chan error
}

func newSocketPlayer() *socketPlayer {
	return &socketPlayer{}
}

func (p *socketPlayer) attach(out chan<- outbound) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = out
}

func (p *socketPlayer) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = nil
	p.pending = nil
}

func (p *socketPlayer) send(msg interface{}) (chan error, error) {
	p.mu.Lock()
	out := p.out
	p.mu.Unlock()
	if out == nil {
		return nil, errNoClient
	}
	o := outbound{msg: msg, written: make(chan error, 1)}
	select {
	case out <- o:
		return o.written, nil
	default:
		return nil, errors.New("websocket client is not keeping up")
	}
}

func (p *socketPlayer) SetSource(url string) error {
	written, err := p.send(playerMessage{Type: "player", Action: "source", URL: url})
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.pending = written
	p.mu.Unlock()
	return nil
}

// Rendered 等待 source 消息写到连接上
func (p *socketPlayer) Rendered(ctx context.Context) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	if pending == nil {
		return nil
	}
	select {
	case err := <-pending:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *socketPlayer) Play() error {
	_, err := p.send(playerMessage{Type: "player", Action: "play"})
	return err
}
