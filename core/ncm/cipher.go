package ncm

import (
	"bytes"
	"crypto/aes"
	"fmt"
)

var (
	coreKey = []byte("hzHRAmso5kInbaxW")
	metaKey = []byte{0x23, 0x31, 0x34, 0x6C, 0x6A, 0x6B, 0x5F, 0x21, 0x5C, 0x5D, 0x26, 0x30, 0x55, 0x3C, 0x27, 0x28}
)

// decryptECB AES-128-ECB 解密并去除 PKCS7 填充
func decryptECB(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrCorrupt, len(data))
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		block.Decrypt(out[i:i+bs], data[i:i+bs])
	}
	return unpad(out, bs)
}

// encryptECB 与 decryptECB 对称，ncmtest 用它构造样本文件
func encryptECB(key, data []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err) // key 长度固定为 16
	}
	bs := block.BlockSize()
	padLen := bs - len(data)%bs
	plain := append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	out := make([]byte, len(plain))
	for i := 0; i < len(plain); i += bs {
		block.Encrypt(out[i:i+bs], plain[i:i+bs])
	}
	return out
}

func unpad(data []byte, bs int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > bs || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrCorrupt)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCorrupt)
		}
	}
	return data[:len(data)-n], nil
}

// keyStream 由 RC4 风格的 key box 展开得到，音频第 p 个字节与 ks[p&0xff] 异或
type keyStream [256]byte

func newKeyStream(key []byte) *keyStream {
	var box [256]byte
	for i := range box {
		box[i] = byte(i)
	}
	var last byte
	off := 0
	for i := range box {
		swap := box[i]
		c := swap + last + key[off]
		off++
		if off >= len(key) {
			off = 0
		}
		box[i] = box[c]
		box[c] = swap
		last = c
	}

	ks := new(keyStream)
	for i := range ks {
		j := byte(i + 1)
		ks[i] = box[box[j]+box[box[j]+j]]
	}
	return ks
}

// xor 对从音频偏移 off 开始的 buf 原地加/解密
func (ks *keyStream) xor(buf []byte, off int64) {
	for i := range buf {
		buf[i] ^= ks[(off+int64(i))&0xff]
	}
}
