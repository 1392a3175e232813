package utils

import (
	"crypto/rand"
	"math/big"
)

// GameIDAlphabet 对局ID只使用小写字母，便于口头分享
const GameIDAlphabet = "abcdefghijklmnopqrstuvwxyz"

// DefaultGameIDLength 默认对局ID长度
const DefaultGameIDLength = 6

// NewGameID 生成随机的小写字母对局ID
func NewGameID(length int) string {
	if length <= 0 {
		length = DefaultGameIDLength
	}
	max := big.NewInt(int64(len(GameIDAlphabet)))
	id := make([]byte, length)
	for i := range id {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		id[i] = GameIDAlphabet[n.Int64()]
	}
	return string(id)
}

// ValidGameID 校验对局ID格式
func ValidGameID(id string, length int) bool {
	if length <= 0 {
		length = DefaultGameIDLength
	}
	if len(id) != length {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 'a' || id[i] > 'z' {
			return false
		}
	}
	return true
}
