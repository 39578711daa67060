package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/chat-search/internal/core/index"
	"github.com/jinford/chat-search/internal/core/rag"
)

// AskAction はエクスポートファイルへの質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	path := cmd.String("file")

	question := cmd.Args().First()
	if question == "" {
		return fmt.Errorf("質問文を指定してください")
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

	err = sess.EnsureEmbeddings(ctx, func(p index.Progress) {
		appCtx.Logger.Info("インデックス構築中", "completed", p.Completed, "total", p.Total)
	})
	if err != nil {
		return err
	}

	history := []rag.ChatMessage{
		{Role: rag.RoleUser, Content: question},
	}

	// トークンを受信し次第そのまま標準出力へ流す
	result, err := appCtx.RAG.Ask(ctx, sess, history, func(token string) {
		fmt.Print(token)
	})
	fmt.Println()
	if err != nil {
		return err
	}

	appCtx.Logger.Info("質問応答が完了しました",
		"queries", result.Stats.Queries,
		"unique_chunks", result.Stats.UniqueChunks,
		"used_chunks", result.Stats.UsedChunks,
	)
	return nil
}
