package server

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ncmc/core/session"
	"ncmc/core/worker"
	"ncmc/logger"
)

var errSessionNotFound = errors.New("session not found")

// entry 会话及其专属的上传目录和播放器
type entry struct {
	sess      *session.Session
	player    *socketPlayer
	uploadDir string
}

// Manager 管理所有活动会话
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	workerOpts worker.Options
	timeout    time.Duration
	uploadRoot string
}

// NewManager 创建会话管理器
func NewManager(workerOpts worker.Options, timeout time.Duration, uploadRoot string) *Manager {
	return &Manager{
		sessions:   make(map[string]*entry),
		workerOpts: workerOpts,
		timeout:    timeout,
		uploadRoot: uploadRoot,
	}
}

// Create 新建会话
func (m *Manager) Create() (*entry, error) {
	player := newSocketPlayer()
	sess, err := session.New(session.Options{
		Worker:  m.workerOpts,
		Timeout: m.timeout,
		Player:  player,
	})
	if err != nil {
		return nil, err
	}

	e := &entry{
		sess:      sess,
		player:    player,
		uploadDir: filepath.Join(m.uploadRoot, sess.ID),
	}
	m.mu.Lock()
	m.sessions[sess.ID] = e
	m.mu.Unlock()
	return e, nil
}

// Get 查找会话
func (m *Manager) Get(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	return e, nil
}

// Remove 关闭会话并清理上传文件
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.release(e)
}

// Count 活动会话数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap 关闭创建时间早于 maxAge 的会话
func (m *Manager) Reap(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	m.mu.Lock()
	var stale []*entry
	for id, e := range m.sessions {
		if now.Sub(e.sess.CreatedAt) > maxAge {
			stale = append(stale, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		m.release(e)
	}
	return len(stale)
}

// CloseAll 关闭全部会话，服务退出时调用
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		m.release(e)
	}
}

func (m *Manager) release(e *entry) {
	e.sess.Close()
	e.player.detach()
	if err := os.RemoveAll(e.uploadDir); err != nil {
		logger.Warn("清理上传目录失败",
			logger.String("dir", e.uploadDir),
			logger.ErrorField(err))
	}
}
