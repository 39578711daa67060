package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/samber/mo"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/jinford/chat-search/internal/core/index"
)

const schema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	cache_key    TEXT PRIMARY KEY,
	vector_count INTEGER NOT NULL,
	dimension    INTEGER NOT NULL,
	vectors      BLOB NOT NULL,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Cache は SQLite を使った Embedding キャッシュ実装
// ベクトルはリトルエンディアンのfloat32列としてBLOBに格納する
type Cache struct {
	db   *sql.DB
	path string
}

// NewCache は指定ディレクトリにキャッシュDBを作成または開く
// dataDir が空の場合は ~/.chat-search/data を使用する
func NewCache(dataDir string) (*Cache, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".chat-search", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "embeddings.db")

	// WALモードで開く（並行アクセスに強い）
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db, path: dbPath}, nil
}

// Close はデータベース接続を閉じる
func (c *Cache) Close() error {
	return c.db.Close()
}

// Path はデータベースファイルのパスを返す
func (c *Cache) Path() string {
	return c.path
}

// Get はキーに対応するベクトル列を返す。未登録の場合は None
func (c *Cache) Get(ctx context.Context, key string) (mo.Option[[][]float32], error) {
	var count, dimension int
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT vector_count, dimension, vectors FROM embedding_cache WHERE cache_key = ?`, key,
	).Scan(&count, &dimension, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[[][]float32](), nil
	}
	if err != nil {
		return mo.None[[][]float32](), fmt.Errorf("reading cache entry: %w", err)
	}

	vectors, err := decodeVectors(blob, count, dimension)
	if err != nil {
		return mo.None[[][]float32](), fmt.Errorf("decoding cache entry: %w", err)
	}
	return mo.Some(vectors), nil
}

// Put はベクトル列を保存する（同一キーは上書き）
func (c *Cache) Put(ctx context.Context, key string, vectors [][]float32) error {
	dimension := 0
	if len(vectors) > 0 {
		dimension = len(vectors[0])
	}

	blob := encodeVectors(vectors, dimension)
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embedding_cache (cache_key, vector_count, dimension, vectors) VALUES (?, ?, ?, ?)`,
		key, len(vectors), dimension, blob,
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// encodeVectors はベクトル列をリトルエンディアンのfloat32列に直列化する
func encodeVectors(vectors [][]float32, dimension int) []byte {
	blob := make([]byte, 0, len(vectors)*dimension*4)
	var buf [4]byte
	for _, vec := range vectors {
		for i := 0; i < dimension; i++ {
			var v float32
			if i < len(vec) {
				v = vec[i]
			}
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			blob = append(blob, buf[:]...)
		}
	}
	return blob
}

func decodeVectors(blob []byte, count, dimension int) ([][]float32, error) {
	if len(blob) != count*dimension*4 {
		return nil, fmt.Errorf("blob size %d does not match %d vectors of dimension %d", len(blob), count, dimension)
	}

	vectors := make([][]float32, count)
	offset := 0
	for i := range vectors {
		vec := make([]float32, dimension)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(blob[offset:]))
			offset += 4
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// インターフェース実装の確認
var _ index.CacheStore = (*Cache)(nil)
