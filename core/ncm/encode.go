package ncm

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"ncmc/model"
)

// Contents 打包成 ncm 容器所需的内容
type Contents struct {
	Key   []byte // 音频密钥，为空时使用固定值
	Meta  *model.Meta
	Cover []byte
	Audio []byte
}

var defaultKey = []byte("11831838765432101E7E1A2B3C4D5E6F")

// Encode 将 Contents 写成 ncm 容器，主要用于测试样本和回归数据
func Encode(w io.Writer, c Contents) error {
	key := c.Key
	if len(key) == 0 {
		key = defaultKey
	}

	buf := []byte(magic)
	buf = append(buf, 0x01, 0x70)

	keyData := encryptECB(coreKey, append([]byte(keyPrefix), key...))
	for i := range keyData {
		keyData[i] ^= 0x64
	}
	buf = appendBlock(buf, keyData)

	var metaData []byte
	if c.Meta != nil {
		js, err := json.Marshal(c.Meta)
		if err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
		enc := encryptECB(metaKey, append([]byte(musicPrefix), js...))
		metaData = []byte(metaPrefix + base64.StdEncoding.EncodeToString(enc))
		for i := range metaData {
			metaData[i] ^= 0x63
		}
	}
	buf = appendBlock(buf, metaData)

	buf = append(buf, 0, 0, 0, 0, 0x01) // crc32 + 版本，解码时忽略
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Cover)))
	buf = appendBlock(buf, c.Cover)

	audio := append([]byte{}, c.Audio...)
	newKeyStream(key).xor(audio, 0)
	buf = append(buf, audio...)

	_, err := w.Write(buf)
	return err
}

func appendBlock(buf, data []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}
