package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	hlsmirror "github.com/hlsmirror/go-hlsmirror"
	"github.com/hlsmirror/go-hlsmirror/internal/config"
)

func init() {
	command := &cobra.Command{
		Use:   "mirror",
		Short: "mirror a playlist tree and serve it",
		Long:  `mirror downloads an HLS playlist tree into the output directory and serves it on a local port`,
		Run:   hlsmirror.Service.MirrorCommand,
	}

	configs := []config.Config{
		hlsmirror.Service.StreamConfig,
		hlsmirror.Service.ServerConfig,
	}

	// runs after the configuration file has been read, and again on reload
	onConfigLoad = append(onConfigLoad, func() {
		for _, cfg := range configs {
			cfg.Set()
		}
		hlsmirror.Service.Preflight()
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run mirror command")
		}
	}

	rootCmd.AddCommand(command)
}
