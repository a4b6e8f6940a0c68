package probe

import (
	"errors"
	"fmt"
	"io"
	"time"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// ErrUnknownLength 解码器无法给出总长度
var ErrUnknownLength = errors.New("probe: unknown stream length")

// MP3Duration 通过完整扫描帧头计算 mp3 时长。
// go-mp3 输出固定为 16-bit 双声道，每个采样帧 4 字节。
func MP3Duration(r io.ReadSeeker) (time.Duration, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return 0, fmt.Errorf("probe mp3: %w", err)
	}
	length := dec.Length()
	rate := dec.SampleRate()
	if length <= 0 || rate <= 0 {
		return 0, ErrUnknownLength
	}
	frames := length / 4
	return time.Duration(frames) * time.Second / time.Duration(rate), nil
}
