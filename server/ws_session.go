package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ncmc/core/store"
	"ncmc/logger"
	"ncmc/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 必须小于 pongWait
	maxMessageSize = 4096
	outboundBuffer = 16
)

var sessionUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SessionSocketHandler GET /api/sessions/{id}/ws
// 推送曲目变化和播放器指令，接收 play 请求。连接断开即关闭会话。
func (s *Server) SessionSocketHandler(w http.ResponseWriter, r *http.Request) {
	e := entryFromContext(r.Context())

	conn, err := sessionUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket 升级失败",
			logger.String("session", e.sess.ID),
			logger.ErrorField(err))
		return
	}
	defer conn.Close()
	defer s.sessions.Remove(e.sess.ID)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	out := make(chan outbound, outboundBuffer)
	e.player.attach(out)
	defer e.player.detach()

	revs, cancelWatch := e.sess.Watch()
	defer cancelWatch()

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writePump(conn, out, e.sess.Snapshot(), revs, done)
	}()

	logger.Info("websocket 已连接", logger.String("session", e.sess.ID))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("websocket 异常关闭",
					logger.String("session", e.sess.ID),
					logger.ErrorField(err))
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			enqueue(out, errorMessage{Type: "error", Message: "invalid message format"})
			continue
		}
		switch msg.Type {
		case "play":
			if e.sess.Snapshot().Get(msg.ID) == nil {
				enqueue(out, errorMessage{Type: "error", Message: "track not found"})
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), writeWait)
			err := e.sess.Play(ctx, msg.ID)
			cancel()
			if err != nil {
				enqueue(out, errorMessage{Type: "error", Message: err.Error()})
			}
		default:
			enqueue(out, errorMessage{Type: "error", Message: "unknown message type " + msg.Type})
		}
	}

	close(done)
	<-writerDone
	logger.Info("websocket 已断开", logger.String("session", e.sess.ID))
}

// writePump 唯一写连接的协程: 曲目变化、播放器指令和心跳
func writePump(conn *websocket.Conn, out <-chan outbound, initial *store.Store, revs <-chan *store.Store, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	// 写失败时让读循环尽快退出
	defer conn.Close()

	write := func(v interface{}) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	// 之后只发送指针变化的记录
	var last *store.Store
	sendRevision := func(rev *store.Store) error {
		msg := tracksMessage{
			Type:    "tracks",
			Version: rev.Version(),
			Total:   rev.Len(),
			Tracks:  views(pick(rev.Tracks(), rev.Changed(last))),
		}
		last = rev
		return write(msg)
	}

	// 首帧发送完整列表
	if err := sendRevision(initial); err != nil {
		return
	}

	for {
		select {
		case o := <-out:
			err := write(o.msg)
			if o.written != nil {
				o.written <- err
			}
			if err != nil {
				return
			}
		case rev, ok := <-revs:
			if !ok {
				return
			}
			if len(rev.Changed(last)) == 0 {
				continue
			}
			if err := sendRevision(rev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func pick(tracks []*model.Track, ids []int) []*model.Track {
	out := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, tracks[id])
	}
	return out
}

// enqueue 写协程跟不上时丢弃
func enqueue(out chan<- outbound, msg interface{}) {
	select {
	case out <- outbound{msg: msg}:
	default:
	}
}
