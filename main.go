package hlsmirror

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hlsmirror/go-hlsmirror/internal/config"
	"github.com/hlsmirror/go-hlsmirror/internal/fetch"
	"github.com/hlsmirror/go-hlsmirror/internal/http"
	"github.com/hlsmirror/go-hlsmirror/internal/mirror"
)

var Service *Main

func init() {
	Service = &Main{
		StreamConfig: &config.Stream{},
		ServerConfig: &config.Server{},
	}
}

type Main struct {
	StreamConfig *config.Stream
	ServerConfig *config.Server

	logger zerolog.Logger
	engine *mirror.ManagerCtx
	server *http.ServerCtx
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) Mirror(ctx context.Context) error {
	client := fetch.New(main.StreamConfig.Headers)
	main.engine = mirror.New(client, main.StreamConfig)
	return main.engine.Mirror(ctx)
}

func (main *Main) Start() {
	main.server = http.New(main.ServerConfig, main.StreamConfig.Output)
	main.server.Start()
}

func (main *Main) Shutdown() {
	if err := main.server.Shutdown(); err != nil {
		main.logger.Err(err).Msg("server shutdown with an error")
	} else {
		main.logger.Debug().Msg("server shutdown")
	}
}

func (main *Main) MirrorCommand(cmd *cobra.Command, args []string) {
	if err := main.StreamConfig.Validate(); err != nil {
		main.logger.Fatal().Err(err).Msg("invalid stream configuration")
	}
	if err := main.ServerConfig.Validate(); err != nil {
		main.logger.Fatal().Err(err).Msg("invalid server configuration")
	}

	main.logger.Info().
		Str("url", main.StreamConfig.URL).
		Str("output", main.StreamConfig.Output).
		Int("port", main.ServerConfig.Port).
		Msg("starting mirror run")

	// ctrl-c during the mirror phase aborts the run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := main.Mirror(ctx)
	stop()
	if err != nil {
		main.logger.Fatal().Err(err).Msg("mirror run failed")
	}
	main.logger.Info().Msg("mirror complete")

	// the server is started only once the tree is fully mirrored
	main.Start()
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.Shutdown()
	main.logger.Info().Msg("shutdown complete")
}
