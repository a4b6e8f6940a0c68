// Package ncm 解析网易云音乐 .ncm 容器。
//
// 容器布局（所有长度均为小端 uint32）:
//
//	"CTENFDAM" + 2 字节间隔
//	key 块:   len + (AES-128-ECB(coreKey) 后 ^0x64)，明文以 "neteasecloudmusic" 开头
//	meta 块:  len + (^0x63)，"163 key(Don't modify):" + base64(AES-128-ECB(metaKey, "music:"+JSON))
//	5 字节 (crc32 + 版本)
//	封面帧:   frameLen + imageLen + image + 填充到 frameLen
//	音频:     其余字节，与由 key 派生的 256 字节密钥流逐字节异或
//
// Open 只读取头部，音频通过 Audio 以流的方式解密。
package ncm
