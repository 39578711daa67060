package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/jinford/chat-search/internal/interface/httpapi"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	port := int(cmd.Int("port"))

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if port == 0 {
		port = appCtx.Config.Server.Port
	}

	opts := []httpapi.ServerOption{httpapi.WithServerLogger(appCtx.Logger)}
	if appCtx.Cache != nil {
		opts = append(opts, httpapi.WithCacheStore(appCtx.Cache))
	}

	srv := httpapi.NewServer(ctx, appCtx.Chunker, appCtx.Embedder, appCtx.RAG, opts...)
	return srv.Start(ctx, port)
}
