package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Meta 容器内嵌的歌曲元数据
type Meta struct {
	MusicID   json.Number `json:"musicId,omitempty"`
	MusicName string      `json:"musicName"`
	Artist    []Artist    `json:"artist"`
	Album     string      `json:"album"`
	AlbumPic  string      `json:"albumPic,omitempty"`
	Bitrate   int         `json:"bitrate,omitempty"`
	Duration  int64       `json:"duration,omitempty"` // 毫秒
	Format    string      `json:"format"`             // 解码后音频格式，如 mp3、flac
}

// Artist 在线格式为 [name, id] 数组
type Artist struct {
	Name string
	ID   int64
}

// MarshalJSON 保持 [name, id] 的数组形式
func (a Artist) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{a.Name, a.ID})
}

// UnmarshalJSON 接受 ["name", 123]、["name", "123"] 以及只有名字的 ["name"]
func (a *Artist) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("artist: %w", err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("artist: empty group")
	}
	if err := json.Unmarshal(parts[0], &a.Name); err != nil {
		return fmt.Errorf("artist name: %w", err)
	}
	if len(parts) > 1 {
		var id json.Number
		if err := json.Unmarshal(parts[1], &id); err == nil {
			a.ID, _ = id.Int64()
		}
	}
	return nil
}

// ArtistNames 以 sep 拼接所有艺术家名
func (m *Meta) ArtistNames(sep string) string {
	names := make([]string, len(m.Artist))
	for i, ar := range m.Artist {
		names[i] = ar.Name
	}
	return strings.Join(names, sep)
}
