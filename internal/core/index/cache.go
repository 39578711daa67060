package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/samber/mo"

	"github.com/jinford/chat-search/internal/core/chunk"
)

// CacheStore は計算済みチャンクベクトルのコンテンツアドレスストア
//
// キーは生アップロードバイト列のハッシュにチャンク方式バージョンを
// 付与したもの。読み出し側はベクトル数と現在のチャンク数の一致を
// 検証する（パラメータドリフトの間接的な検出）ため、ストア自体は
// スキーマバージョンを持たない
type CacheStore interface {
	// Get はキーに対応するベクトル列を返す。未登録の場合は None
	Get(ctx context.Context, key string) (mo.Option[[][]float32], error)
	// Put はベクトル列を保存する。ベストエフォートであり、呼び出し側は
	// エラーを無視してよい
	Put(ctx context.Context, key string, vectors [][]float32) error
}

// CacheKey は生アップロードバイト列からキャッシュキーを導出する
// チャンク化パラメータを変更した場合は chunk.SchemeVersion を上げること
func CacheKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]) + ":" + chunk.SchemeVersion
}
