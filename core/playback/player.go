package playback

import (
	"context"
	"fmt"
)

// Player 唯一的共享播放器，只有订阅者可以操作它
type Player interface {
	SetSource(url string) error
	// Rendered 等待界面反映出新的音源
	Rendered(ctx context.Context) error
	Play() error
}

// Switch 切换音源: 设置、等待渲染、开始播放
func Switch(ctx context.Context, p Player, url string) error {
	if err := p.SetSource(url); err != nil {
		return fmt.Errorf("set source: %w", err)
	}
	if err := p.Rendered(ctx); err != nil {
		return fmt.Errorf("wait for render: %w", err)
	}
	if err := p.Play(); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}
