package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ncmc/config"
	"ncmc/core/ncm/ncmtest"
	"ncmc/core/worker"
	"ncmc/storage"
)

type testEnv struct {
	srv *Server
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		WebAppDir:      filepath.Join(dir, "ui"),
		UploadDir:      filepath.Join(dir, "uploads"),
		OutputDir:      filepath.Join(dir, "media"),
		DecodeWorkers:  2,
		DecodeTimeout:  time.Minute,
		MediaBackend:   "local",
		MediaURLPrefix: "/media/",
		JWTSecret:      "test-secret",
		SessionTTL:     time.Hour,
	}
	sink, err := storage.NewLocalSink(cfg.OutputDir, cfg.MediaURLPrefix)
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(cfg, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.sessions.CloseAll()
	})
	return &testEnv{srv: srv, ts: ts}
}

func (e *testEnv) createSession(t *testing.T) sessionResponse {
	t.Helper()
	resp, err := http.Post(e.ts.URL+"/api/sessions", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: %d", resp.StatusCode)
	}
	var s sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.ID == "" || s.Token == "" {
		t.Fatalf("session = %+v", s)
	}
	return s
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (e *testEnv) drop(t *testing.T, s sessionResponse, files map[string][]byte) dropResponse {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()

	resp := e.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/drop", s.Token, &buf, mw.FormDataContentType())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("drop: %d %s", resp.StatusCode, b)
	}
	var dr dropResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		t.Fatal(err)
	}
	return dr
}

type trackJSON struct {
	ID           int    `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	AlbumTitle   string `json:"albumTitle"`
	DownloadName string `json:"downloadName"`
	CanPlay      bool   `json:"canPlay"`
}

type tracksJSON struct {
	Type    string      `json:"type"`
	Version uint64      `json:"version"`
	Total   int         `json:"total"`
	Tracks  []trackJSON `json:"tracks"`
}

func (e *testEnv) tracks(t *testing.T, s sessionResponse) tracksJSON {
	t.Helper()
	resp := e.do(t, http.MethodGet, "/api/sessions/"+s.ID+"/tracks", s.Token, nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tracks: %d", resp.StatusCode)
	}
	var tj tracksJSON
	if err := json.NewDecoder(resp.Body).Decode(&tj); err != nil {
		t.Fatal(err)
	}
	return tj
}

func TestSessionRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)
	other := env.createSession(t)

	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"garbage", "nope", "", http.StatusUnauthorized},
		{"other session", other.Token, "", http.StatusUnauthorized},
		{"bad scheme", "", "Basic abc", http.StatusUnauthorized},
		{"valid", s.Token, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/sessions/"+s.ID+"/tracks", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestDropDecodeAndServeMedia(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)

	dr := env.drop(t, s, map[string][]byte{
		"晴天.ncm":   ncmtest.Bytes(t, ncmtest.Sample("晴天")),
		"readme.md": []byte("# not music"),
	})
	if len(dr.IDs) != 1 || dr.IDs[0] != 0 || dr.Ignored != 1 {
		t.Fatalf("drop = %+v", dr)
	}

	var tr trackJSON
	deadline := time.Now().Add(5 * time.Second)
	for {
		tj := env.tracks(t, s)
		if tj.Total != 1 {
			t.Fatalf("total = %d", tj.Total)
		}
		tr = tj.Tracks[0]
		if tr.CanPlay {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("track never became playable: %+v", tr)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if tr.Title != "周杰伦/费玉清 - 晴天" || tr.AlbumTitle != "叶惠美" || tr.DownloadName != "晴天.flac" {
		t.Errorf("view = %+v", tr)
	}

	resp, err := http.Get(env.ts.URL + tr.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("fLaC")) {
		t.Fatalf("media: %d %q", resp.StatusCode, body[:min(len(body), 8)])
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/flac" {
		t.Errorf("content type = %q", ct)
	}
}

func TestMediaNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/media/tracks/none/x.mp3")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodOptions, "/api/sessions/x/drop", "", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: %d %v", resp.StatusCode, resp.Header)
	}
}

func TestDeleteSessionReleasesIt(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)
	if env.srv.sessions.Count() != 1 {
		t.Fatalf("count = %d", env.srv.sessions.Count())
	}
	resp := env.do(t, http.MethodDelete, "/api/sessions/"+s.ID, s.Token, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/sessions/"+s.ID+"/tracks", s.Token, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("tracks after delete: %d", resp.StatusCode)
	}
}

func TestManagerReap(t *testing.T) {
	m := NewManager(worker.Options{Workers: 1}, 0, t.TempDir())
	defer m.CloseAll()
	if _, err := m.Create(); err != nil {
		t.Fatal(err)
	}
	if n := m.Reap(time.Now(), time.Hour); n != 0 {
		t.Fatalf("reaped %d fresh sessions", n)
	}
	if n := m.Reap(time.Now().Add(2*time.Hour), time.Hour); n != 1 || m.Count() != 0 {
		t.Fatalf("reaped %d, left %d", n, m.Count())
	}
}

// 读取消息直到 match 返回 true
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestWebSocketPlayback(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/sessions/" + s.ID + "/ws?token=" + s.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readUntil(t, conn, func(m map[string]interface{}) bool { return m["type"] == "tracks" })
	if first["total"].(float64) != 0 {
		t.Fatalf("first frame = %v", first)
	}

	// 还没有 url 的曲目不能播放
	conn.WriteJSON(clientMessage{Type: "play", ID: 0})
	readUntil(t, conn, func(m map[string]interface{}) bool { return m["type"] == "error" })

	env.drop(t, s, map[string][]byte{"a.ncm": ncmtest.Bytes(t, ncmtest.Sample("A"))})
	var url string
	readUntil(t, conn, func(m map[string]interface{}) bool {
		if m["type"] != "tracks" {
			return false
		}
		for _, raw := range m["tracks"].([]interface{}) {
			tr := raw.(map[string]interface{})
			if u, ok := tr["url"].(string); ok && u != "" {
				url = u
				return true
			}
		}
		return false
	})

	conn.WriteJSON(clientMessage{Type: "play", ID: 0})
	src := readUntil(t, conn, func(m map[string]interface{}) bool { return m["type"] == "player" })
	if src["action"] != "source" || src["url"] != url {
		t.Fatalf("first player message = %v, want source %s", src, url)
	}
	play := readUntil(t, conn, func(m map[string]interface{}) bool { return m["type"] == "player" })
	if play["action"] != "play" {
		t.Fatalf("second player message = %v", play)
	}

	// 断开连接会关闭会话
	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for env.srv.sessions.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session survived websocket close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlayUnknownTrack(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)

	resp := env.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/play/5", s.Token, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown track: %d", resp.StatusCode)
	}

	// 已知但不能播放的曲目仍是 409
	env.drop(t, s, map[string][]byte{"broken.ncm": []byte("CTENFDAM")})
	resp = env.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/play/0", s.Token, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("unplayable track: %d", resp.StatusCode)
	}
}
