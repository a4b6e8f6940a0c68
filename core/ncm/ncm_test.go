package ncm_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"ncmc/core/ncm"
	"ncmc/core/ncm/ncmtest"
)

func TestOpenRoundTrip(t *testing.T) {
	src := ncmtest.Sample("晴天")
	data := ncmtest.Bytes(t, src)

	f, err := ncm.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	meta := f.Meta()
	if meta == nil {
		t.Fatal("expected meta")
	}
	if meta.MusicName != "晴天" {
		t.Errorf("MusicName = %q, want %q", meta.MusicName, "晴天")
	}
	if got := meta.ArtistNames("/"); got != "周杰伦/费玉清" {
		t.Errorf("artists = %q", got)
	}
	if meta.Artist[0].ID != 6452 {
		t.Errorf("artist id = %d, want 6452", meta.Artist[0].ID)
	}
	if meta.Album != "叶惠美" || meta.Format != "flac" {
		t.Errorf("album/format = %q/%q", meta.Album, meta.Format)
	}
	if !bytes.Equal(f.Cover(), src.Cover) {
		t.Errorf("cover mismatch: got %d bytes, want %d", len(f.Cover()), len(src.Cover))
	}

	audio, err := io.ReadAll(f.Audio())
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if !bytes.Equal(audio, src.Audio) {
		t.Fatalf("audio mismatch: got %d bytes, want %d", len(audio), len(src.Audio))
	}
}

func TestOpenRejectsOtherFiles(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("CTEN")},
		{"mp3", []byte("ID3\x03\x00\x00\x00\x00\x00\x00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ncm.Open(bytes.NewReader(tt.data))
			if !errors.Is(err, ncm.ErrNotNCM) {
				t.Fatalf("err = %v, want ErrNotNCM", err)
			}
		})
	}
}

func TestOpenTruncatedHeader(t *testing.T) {
	data := ncmtest.Bytes(t, ncmtest.Sample("x"))
	_, err := ncm.Open(bytes.NewReader(data[:40]))
	if !errors.Is(err, ncm.ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestOpenWithoutMeta(t *testing.T) {
	src := ncm.Contents{Audio: []byte("fLaC\x00\x00\x00\x22")}
	f, err := ncm.Open(bytes.NewReader(ncmtest.Bytes(t, src)))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if f.Meta() != nil {
		t.Errorf("expected nil meta, got %+v", f.Meta())
	}
	if len(f.Cover()) != 0 {
		t.Errorf("expected no cover, got %d bytes", len(f.Cover()))
	}
	if got := f.Format(); got != "flac" {
		t.Errorf("Format() = %q, want flac (sniffed)", got)
	}
}

func TestFormatSniffDefaultsToMP3(t *testing.T) {
	src := ncm.Contents{Audio: []byte("ID3\x04\x00\x00\x00\x00\x00\x00")}
	f, err := ncm.Open(bytes.NewReader(ncmtest.Bytes(t, src)))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := f.Format(); got != "mp3" {
		t.Errorf("Format() = %q, want mp3", got)
	}
	// 嗅探不能吞掉音频数据
	audio, _ := io.ReadAll(f.Audio())
	if !bytes.Equal(audio, src.Audio) {
		t.Errorf("audio changed after sniff")
	}
}

func TestDistinctKeysProduceSameAudio(t *testing.T) {
	src := ncmtest.Sample("x")
	src.Key = []byte("0123456789abcdefE7fT49x7dof9OKCg")
	f, err := ncm.Open(bytes.NewReader(ncmtest.Bytes(t, src)))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	audio, _ := io.ReadAll(f.Audio())
	if !bytes.Equal(audio, src.Audio) {
		t.Fatal("audio mismatch with custom key")
	}
}
