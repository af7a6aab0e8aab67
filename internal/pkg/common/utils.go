package common

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// HashContent 計算內容的 SHA-256 哈希值（來源紀錄 / 快取鍵用）
func HashContent(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HashString 計算字符串的 SHA-256 哈希值
func HashString(s string) string {
	return HashContent([]byte(s))
}
