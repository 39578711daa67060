package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/chat-search/cmd/chat-search/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "chat-search",
		Usage: "WhatsAppチャットエクスポートの意味検索・RAG質問応答システム",
		Commands: []*cli.Command{
			{
				Name:  "parse",
				Usage: "エクスポートファイルを解析して構造を表示",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "チャットエクスポートファイル（.txt）",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "JSON形式で出力",
					},
				},
				Action: commands.ParseAction,
			},
			{
				Name:      "search",
				Usage:     "エクスポートファイルを意味検索",
				ArgsUsage: "<クエリ>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "チャットエクスポートファイル（.txt）",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top",
						Usage: "表示する検索結果の件数",
						Value: 8,
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:      "ask",
				Usage:     "エクスポート内容に基づくRAG質問応答",
				ArgsUsage: "<質問文>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "チャットエクスポートファイル（.txt）",
						Required: true,
					},
				},
				Action: commands.AskAction,
			},
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
							},
						},
						Action: commands.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
