// pkg/types/common.go
package types

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// DigestSize 是 Digest 的固定字节宽度 (MD5)
const DigestSize = md5.Size

// Digest 代表对象的唯一标识符 (内容哈希)
// 这是一个"值对象"，应当是不可变的。
// 零值即 Invalid：全零字节被保留为哨兵，任何真实对象都不会用它作为身份。
type Digest [DigestSize]byte

// Invalid 返回哨兵值
func Invalid() Digest { return Digest{} }

// Sum 计算 data 的 Digest
func Sum(data []byte) Digest { return Digest(md5.Sum(data)) }

func (d Digest) IsValid() bool { return d != Digest{} }

// String 返回小写 hex；Invalid 输出 32 个 '0'
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Compare 按字节字典序比较，Invalid 排在最前
func (d Digest) Compare(o Digest) int { return bytes.Compare(d[:], o[:]) }

func (d Digest) Less(o Digest) bool { return d.Compare(o) < 0 }

// ParseDigest 解析 32 位 hex 文本
// 全零文本解析为 Invalid (用于 GraphNode 的 "Leaf:" 字段)
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != 2*DigestSize {
		return d, fmt.Errorf("invalid digest %q: want %d hex chars, got %d", s, 2*DigestSize, len(s))
	}
	if _, err := hex.Decode(d[:], []byte(strings.ToLower(s))); err != nil {
		return Digest{}, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	return d, nil
}

// MustParseDigest 仅用于测试或常量
func MustParseDigest(s string) Digest {
	d, err := ParseDigest(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsDigestText 判断 s 是否形如一个 digest (不分配)
func IsDigestText(s string) bool {
	if len(s) != 2*DigestSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(b []byte) error {
	parsed, err := ParseDigest(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
