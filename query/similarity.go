// 本文件实现了标识符近似匹配，用于把不存在的表名或列名映射到
// 真实 Schema 中最相近的候选。相似度基于编辑距离，低于阈值不匹配。

package query

import (
	"math"
	"strings"
)

// similarity 计算两个标识符的相似度，区间 [0, 1]。
func similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	distance := levenshteinDistance(a, b)
	maxLen := math.Max(float64(len(a)), float64(len(b)))
	return 1.0 - (float64(distance) / maxLen)
}

// closestMatch 返回候选中与 name 最相似且不低于阈值的一个。
func closestMatch(name string, candidates []string, threshold float64) (string, bool) {
	best := ""
	bestScore := 0.0
	for _, candidate := range candidates {
		score := similarity(name, candidate)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	if bestScore >= threshold && best != "" {
		return best, true
	}
	return "", false
}

// levenshteinDistance 计算编辑距离，返回两个字符串之间的编辑操作最小次数。
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}

	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				min(matrix[i-1][j]+1, matrix[i][j-1]+1),
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len(s1)][len(s2)]
}
