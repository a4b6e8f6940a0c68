package ncm

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ncmc/model"
)

var (
	// ErrNotNCM 文件头不是 CTENFDAM
	ErrNotNCM = errors.New("ncm: not an ncm container")
	// ErrCorrupt 头部结构损坏
	ErrCorrupt = errors.New("ncm: corrupt container")
)

const (
	magic       = "CTENFDAM"
	keyPrefix   = "neteasecloudmusic"
	metaPrefix  = "163 key(Don't modify):"
	musicPrefix = "music:"
	djPrefix    = "dj:"

	// 单个块的长度上限，防止损坏的长度字段导致巨量分配
	maxBlock = 64 << 20
)

// File 已解析头部的 ncm 容器
type File struct {
	meta  *model.Meta
	cover []byte
	audio *bufio.Reader
}

// Open 读取容器头部（key、meta、封面），r 停在音频数据起始处
func Open(r io.Reader) (*File, error) {
	head := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotNCM, err)
	}
	if string(head[:len(magic)]) != magic {
		return nil, ErrNotNCM
	}

	// key 块
	keyData, err := readBlock(r, "key")
	if err != nil {
		return nil, err
	}
	for i := range keyData {
		keyData[i] ^= 0x64
	}
	key, err := decryptECB(coreKey, keyData)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}
	if !bytes.HasPrefix(key, []byte(keyPrefix)) || len(key) == len(keyPrefix) {
		return nil, fmt.Errorf("%w: unexpected key prefix", ErrCorrupt)
	}
	ks := newKeyStream(key[len(keyPrefix):])

	// meta 块，长度为 0 表示没有元数据
	metaData, err := readBlock(r, "meta")
	if err != nil {
		return nil, err
	}
	meta, err := parseMeta(metaData)
	if err != nil {
		return nil, err
	}

	// crc32 + 版本
	if _, err := io.CopyN(io.Discard, r, 5); err != nil {
		return nil, fmt.Errorf("%w: skip crc: %v", ErrCorrupt, err)
	}

	frameLen, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: cover frame: %v", ErrCorrupt, err)
	}
	cover, err := readBlock(r, "cover")
	if err != nil {
		return nil, err
	}
	if pad := int64(frameLen) - int64(len(cover)); pad > 0 {
		if _, err := io.CopyN(io.Discard, r, pad); err != nil {
			return nil, fmt.Errorf("%w: cover padding: %v", ErrCorrupt, err)
		}
	}

	return &File{
		meta:  meta,
		cover: cover,
		audio: bufio.NewReaderSize(&audioReader{r: r, ks: ks}, 32<<10),
	}, nil
}

// Meta 返回内嵌元数据，容器不带 meta 时为 nil
func (f *File) Meta() *model.Meta { return f.meta }

// Cover 返回封面原始字节，可能为空
func (f *File) Cover() []byte { return f.cover }

// Audio 返回解密后的音频流，只能读取一次
func (f *File) Audio() io.Reader { return f.audio }

// Format 优先使用 meta 中的格式，否则按音频头部嗅探
func (f *File) Format() string {
	if f.meta != nil && f.meta.Format != "" {
		return f.meta.Format
	}
	head, _ := f.audio.Peek(4)
	return sniffFormat(head)
}

func sniffFormat(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(head, []byte("OggS")):
		return "ogg"
	default:
		return "mp3"
	}
}

func parseMeta(data []byte) (*model.Meta, error) {
	if len(data) == 0 {
		return nil, nil
	}
	for i := range data {
		data[i] ^= 0x63
	}
	if !bytes.HasPrefix(data, []byte(metaPrefix)) {
		return nil, fmt.Errorf("%w: unexpected meta prefix", ErrCorrupt)
	}
	raw, err := base64.StdEncoding.DecodeString(string(data[len(metaPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("%w: meta base64: %v", ErrCorrupt, err)
	}
	plain, err := decryptECB(metaKey, raw)
	if err != nil {
		return nil, fmt.Errorf("decrypt meta: %w", err)
	}

	var meta model.Meta
	switch {
	case bytes.HasPrefix(plain, []byte(musicPrefix)):
		err = json.Unmarshal(plain[len(musicPrefix):], &meta)
	case bytes.HasPrefix(plain, []byte(djPrefix)):
		// 电台节目把歌曲信息包在 mainMusic 里
		var dj struct {
			MainMusic model.Meta `json:"mainMusic"`
		}
		err = json.Unmarshal(plain[len(djPrefix):], &dj)
		meta = dj.MainMusic
	default:
		return nil, fmt.Errorf("%w: unknown meta kind", ErrCorrupt)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: meta json: %v", ErrCorrupt, err)
	}
	return &meta, nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readBlock(r io.Reader, name string) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s length: %v", ErrCorrupt, name, err)
	}
	if n > maxBlock {
		return nil, fmt.Errorf("%w: %s block too large (%d)", ErrCorrupt, name, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %s block: %v", ErrCorrupt, name, err)
	}
	return buf, nil
}

type audioReader struct {
	r   io.Reader
	ks  *keyStream
	off int64
}

func (a *audioReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	a.ks.xor(p[:n], a.off)
	a.off += int64(n)
	return n, err
}
