package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/chat-search/internal/core/transcript"
)

// ParseAction はエクスポートファイルを解析して結果を表示するアクション
// APIキーやキャッシュを必要としないため AppContext は使わない
func ParseAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	asJSON := cmd.Bool("json")

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	tr, err := transcript.Parse(raw)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tr)
	}

	fmt.Printf("メッセージ数: %d\n", len(tr.Messages))
	fmt.Printf("参加者 (%d):\n", len(tr.Participants))
	for _, name := range tr.Participants {
		fmt.Printf("  - %s\n", name)
	}
	if len(tr.Messages) > 0 {
		first := tr.Messages[0]
		last := tr.Messages[len(tr.Messages)-1]
		fmt.Printf("期間: %s 〜 %s\n", first.Date, last.Date)
	}
	return nil
}
