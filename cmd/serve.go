package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/m1k1o/go-hlscache/internal/serve"
)

func init() {
	service := serve.NewCommand()

	command := &cobra.Command{
		Use:   "serve",
		Short: "serve hls segment cache",
		Long:  `serve hls segment cache`,
		Run:   service.Run,
	}

	cobra.OnInitialize(service.Preflight)

	// upstream sources can change while running
	onConfigLoad = append(onConfigLoad, service.ConfigReload)

	for _, cfg := range service.Configs() {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	rootCmd.AddCommand(command)
}
