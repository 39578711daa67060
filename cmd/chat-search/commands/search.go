package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/chat-search/internal/core/index"
)

// SearchAction はエクスポートファイルに対する意味検索のアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	path := cmd.String("file")
	topK := int(cmd.Int("top"))

	query := cmd.Args().First()
	if query == "" {
		return fmt.Errorf("検索クエリを指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	sess, err := appCtx.NewSessionFromFile(path)
	if err != nil {
		return err
	}

	appCtx.Logger.Info("インデックスを構築します", "chunks", sess.ChunkCount())
	err = sess.EnsureEmbeddings(ctx, func(p index.Progress) {
		appCtx.Logger.Info("インデックス構築中", "completed", p.Completed, "total", p.Total)
	})
	if err != nil {
		return err
	}

	results, err := sess.SearchText(ctx, query, topK)
	if err != nil {
		return err
	}

	for i, r := range results {
		fmt.Printf("--- [%d] chunk %d (スコア: %.4f)\n", i+1, r.ChunkIndex, r.Score)
		fmt.Println(indent(r.ChunkText))
	}
	return nil
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n")
}
