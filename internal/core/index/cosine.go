package index

import "math"

// Cosine は2ベクトルのコサイン類似度を返す
// いずれかのノルムが0の場合は0を返す（ゼロ除算を避ける）
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// roundScore は表示安定性のためスコアを小数第4位に丸める
func roundScore(s float64) float64 {
	return math.Round(s*10000) / 10000
}
