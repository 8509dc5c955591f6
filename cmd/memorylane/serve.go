package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/memorylane-ai/memorylane/pkg/core/dialogue"
	"github.com/memorylane-ai/memorylane/pkg/core/extract"
	"github.com/memorylane-ai/memorylane/pkg/core/speech/stt"
	"github.com/memorylane-ai/memorylane/pkg/gateway/config"
	"github.com/memorylane-ai/memorylane/pkg/gateway/server"
	"github.com/memorylane-ai/memorylane/pkg/gateway/webhook"
	"github.com/memorylane-ai/memorylane/pkg/store/postgres"
	"github.com/memorylane-ai/memorylane/pkg/store/s3"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the messaging gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := loggerFromViper()
			slog.SetDefault(logger)

			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if v := viper.GetString("gateway.addr"); v != "" {
				cfg.Addr = v
			}
			if v := viper.GetString("gateway.verify_token"); v != "" {
				cfg.VerifyToken = v
			}

			store, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			geminiKey, err := requireString("gemini.api_key")
			if err != nil {
				return err
			}
			completer, err := extract.NewGeminiCompleter(ctx, geminiKey)
			if err != nil {
				return err
			}

			cartesiaKey, err := requireString("cartesia.api_key")
			if err != nil {
				return err
			}
			transcriber := stt.NewCartesia(cartesiaKey)

			sendURL, err := requireString("messaging.send_url")
			if err != nil {
				return err
			}
			sender := webhook.NewHTTPSender(sendURL, viper.GetString("messaging.token"))
			downloader := webhook.NewHTTPDownloader(
				viper.GetString("messaging.media_url"),
				viper.GetString("messaging.token"),
				cfg.MaxBodyBytes,
			)

			hub := webhook.NewHub(ctx, func(ownerID string) *dialogue.Dialogue {
				return dialogue.New(ownerID, completer, transcriber, store, logger)
			}, sender, logger)
			defer hub.Close()

			srv := server.New(cfg, hub, downloader, logger)
			logger.Info("gateway listening", "addr", cfg.Addr)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (overrides config).")
	_ = viper.BindPFlag("gateway.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func openStore(ctx context.Context, logger *slog.Logger) (*postgres.Store, error) {
	dsn, err := requireString("postgres.dsn")
	if err != nil {
		return nil, err
	}
	bucket, err := requireString("s3.bucket")
	if err != nil {
		return nil, err
	}

	blobs, err := s3.New(ctx, s3.Options{
		Bucket:   bucket,
		Endpoint: viper.GetString("s3.endpoint"),
		Region:   viper.GetString("s3.region"),
	}, logger)
	if err != nil {
		return nil, err
	}
	return postgres.New(ctx, dsn, blobs, logger)
}
