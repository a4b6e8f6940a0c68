package playback

import (
	"errors"

	"ncmc/model"
)

// ErrNotPlayable 曲目还没有 url
var ErrNotPlayable = errors.New("playback: track has no url yet")

// Publisher 卡片只需要发布能力
type Publisher interface {
	Publish(url string) error
}

// Card 单个曲目的展示边界，只有拿到 url 的曲目才能发出播放请求
type Card struct {
	Track *model.Track
	Bus   Publisher
}

// CanPlay 播放按钮是否可用
func (c Card) CanPlay() bool {
	return c.Track != nil && c.Track.Playable()
}

// Play 发布该曲目的 url
func (c Card) Play() error {
	if !c.CanPlay() {
		return ErrNotPlayable
	}
	return c.Bus.Publish(c.Track.URL)
}
