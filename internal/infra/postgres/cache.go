package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/chat-search/internal/core/index"
)

// Cache は PostgreSQL + pgvector を使った Embedding キャッシュ実装
// ベクトルは (cache_key, chunk_index) をキーに1行ずつ格納する
type Cache struct {
	pool *pgxpool.Pool
}

// NewCache は接続プールを作成し、スキーマを初期化する
func NewCache(ctx context.Context, connString string, dimension int) (*Cache, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// 接続テスト
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS embedding_cache (
	cache_key   text NOT NULL,
	chunk_index int NOT NULL,
	embedding   vector(%d) NOT NULL,
	created_at  timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (cache_key, chunk_index)
);`, dimension)

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Cache{pool: pool}, nil
}

// Close は接続プールを閉じる
func (c *Cache) Close() error {
	c.pool.Close()
	return nil
}

// Get はキーに対応するベクトル列をチャンク順で返す。未登録の場合は None
func (c *Cache) Get(ctx context.Context, key string) (mo.Option[[][]float32], error) {
	rows, err := c.pool.Query(ctx,
		`SELECT embedding FROM embedding_cache WHERE cache_key = $1 ORDER BY chunk_index`, key)
	if err != nil {
		return mo.None[[][]float32](), fmt.Errorf("failed to query cache: %w", err)
	}
	defer rows.Close()

	var vectors [][]float32
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return mo.None[[][]float32](), fmt.Errorf("failed to scan cache row: %w", err)
		}
		vectors = append(vectors, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return mo.None[[][]float32](), fmt.Errorf("failed to read cache rows: %w", err)
	}

	if len(vectors) == 0 {
		return mo.None[[][]float32](), nil
	}
	return mo.Some(vectors), nil
}

// Put はベクトル列を保存する（同一キーは全置換）
func (c *Cache) Put(ctx context.Context, key string, vectors [][]float32) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM embedding_cache WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("failed to clear cache entry: %w", err)
	}

	batch := &pgx.Batch{}
	for i, vec := range vectors {
		batch.Queue(
			`INSERT INTO embedding_cache (cache_key, chunk_index, embedding) VALUES ($1, $2, $3)`,
			key, i, pgvector.NewVector(vec),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert cache rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ index.CacheStore = (*Cache)(nil)
