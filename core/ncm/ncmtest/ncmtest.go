// Package ncmtest 为测试生成 ncm 样本文件。
package ncmtest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"ncmc/core/ncm"
	"ncmc/model"
)

// PNGHeader 足以让 http.DetectContentType 识别为 image/png
var PNGHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// SampleMeta 返回一份典型的元数据
func SampleMeta(name string) *model.Meta {
	return &model.Meta{
		MusicID:   "186016",
		MusicName: name,
		Artist:    []model.Artist{{Name: "周杰伦", ID: 6452}, {Name: "费玉清", ID: 5538}},
		Album:     "叶惠美",
		Bitrate:   320000,
		Duration:  269000,
		Format:    "flac",
	}
}

// Bytes 构造容器字节
func Bytes(t testing.TB, c ncm.Contents) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := ncm.Encode(&buf, c); err != nil {
		t.Fatalf("encode ncm: %v", err)
	}
	return buf.Bytes()
}

// WriteFile 在 dir 下写入 name 并返回对应的 model.File
func WriteFile(t testing.TB, dir, name string, c ncm.Contents) model.File {
	t.Helper()
	data := Bytes(t, c)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return model.File{Name: name, Path: path, Size: int64(len(data))}
}

// Sample 带 meta、封面和一段 flac 音频的完整样本
func Sample(name string) ncm.Contents {
	return ncm.Contents{
		Meta:  SampleMeta(name),
		Cover: append(append([]byte{}, PNGHeader...), bytes.Repeat([]byte{0x42}, 64)...),
		Audio: append([]byte("fLaC"), bytes.Repeat([]byte{0x00, 0x11, 0x22, 0x33}, 4096)...),
	}
}

// MP3FrameSize 是 MPEG-1 Layer III、128kbps、44.1kHz、无填充时一帧的字节数
const MP3FrameSize = 144 * 128000 / 44100

// SilentMP3 生成 frames 个静音帧。帧头之后全为零，主数据长度为零，解码结果是静音。
// 每帧 1152 个采样。
func SilentMP3(frames int) []byte {
	frame := make([]byte, MP3FrameSize)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	return bytes.Repeat(frame, frames)
}

// SampleMP3 元数据不带时长的 mp3 样本
func SampleMP3(name string, frames int) ncm.Contents {
	c := Sample(name)
	c.Meta.Format = "mp3"
	c.Meta.Duration = 0
	c.Audio = SilentMP3(frames)
	return c
}
