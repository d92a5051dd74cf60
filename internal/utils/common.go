package utils

import (
	"os"
	"strings"
)

// GetProjectDir 获取项目根目录
func GetProjectDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return dir
}

// RemoveControlCharacters 移除控制字符
func RemoveControlCharacters(text string) string {
	// 移除常见的控制字符，但保留换行符和制表符
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, text)
}
