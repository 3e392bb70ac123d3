package utils

import "strings"

// DeduplicateSlice 去重字符串切片
func DeduplicateSlice(input []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0)

	for _, val := range input {
		val = strings.TrimSpace(val)
		if val != "" && !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}

	return result
}

// 特征名中需要剥离的尾部限定词，如"开放性（新）"、"外向性(old)"
var traitQualifierMarkers = []string{"（", "(", "-新", "-旧"}

// NormalizeTraitName 规范化特征名：去除首尾空白和尾部限定标注
func NormalizeTraitName(name string) string {
	name = strings.TrimSpace(name)
	for _, marker := range traitQualifierMarkers {
		if idx := strings.Index(name, marker); idx > 0 {
			name = name[:idx]
		}
	}
	return strings.TrimSpace(name)
}

// NormalizeTraitNames 批量规范化并去重，保持原有顺序
func NormalizeTraitNames(names []string) []string {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		if nn := NormalizeTraitName(n); nn != "" {
			normalized = append(normalized, nn)
		}
	}
	return DeduplicateSlice(normalized)
}

// IndexOf 返回元素在切片中的索引，如果不存在则返回-1
func IndexOf(slice []string, element string) int {
	for i, e := range slice {
		if e == element {
			return i
		}
	}
	return -1
}
