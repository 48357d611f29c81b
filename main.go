// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// bcomp is a userspace daemon running a transparent compression layer over a
// block storage. Every logical block written to the device is compressed and
// stored shorter when possible. It is designed for easy extension of all the
// important parts. Hence the compression, the mapping and the storage can be
// easily replaced.
//
// Project structure is following:
//
// - internal contains all packages used by this program. The name "internal"
// is reserved by go compiler and disallows its imports from different
// projects. Since we don't provide any reusable packages, we use internal
// directory.
//
// - internal/bcomp contains the device and the request pipeline, its
// subpackages contain the compression engines, the mapping table, the stats
// and the storage ports. See the package descriptions in the source code for
// more details.
//
// - internal/server exposes stats of the device over http.
//
// - internal/config contains configuration package which is common for all
// commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/asch/bcomp/internal/bcomp"
	"github.com/asch/bcomp/internal/bcomp/port/objport/s3"
	"github.com/asch/bcomp/internal/config"
	"github.com/asch/bcomp/internal/server"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "bcomp",
		Short:        "Transparent compression layer over block storage",
		Long:         "Transparent compression layer over block storage.\n\n" + config.Description(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Configure(configPath); err != nil {
				return err
			}

			loggerSetup(config.Cfg.Log.Pretty, config.Cfg.Log.Level)

			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfig, "Path to configuration file")
	root.AddCommand(serveCmd(), benchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the device and serve its stats until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := openDevice()
			if err != nil {
				return err
			}

			srv := server.New(config.Cfg.Listen, dev, config.Cfg.Profiler)
			registerSigHandlers(srv)

			err = srv.ListenAndServe()

			log.Info().Msgf("Removing %s", dev.Name())
			if cerr := dev.Close(); cerr != nil {
				log.Info().Err(cerr).Send()
			}

			return err
		},
	}
}

// Opens the device described by the configuration.
func openDevice() (*bcomp.Device, error) {
	return bcomp.Open(bcomp.Settings{
		BlockSize:      config.Cfg.Device.BlockSize,
		Compression:    config.Cfg.Device.Compression,
		CompressLevel:  config.Cfg.Device.CompressLevel,
		DecompressMode: config.Cfg.Device.DecompressMode,
		Mapping:        config.Cfg.Device.Mapping,
		Path:           config.Cfg.Device.Path,
		PoolSize:       config.Cfg.PoolSize,
		Workers:        config.Cfg.Workers,
		Size:           config.Cfg.Size,
		S3: s3.Options{
			Remote:    config.Cfg.S3.Remote,
			Region:    config.Cfg.S3.Region,
			AccessKey: config.Cfg.S3.AccessKey,
			SecretKey: config.Cfg.S3.SecretKey,
		},
		Uploaders:   config.Cfg.S3.Uploaders,
		Downloaders: config.Cfg.S3.Downloaders,
	})
}

// Register handler for graceful stop when SIGINT or SIGTERM came in.
func registerSigHandlers(srv *server.Server) {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt)
	signal.Notify(stopChan, syscall.SIGTERM)
	go func() {
		<-stopChan
		log.Info().Msg("Received interrupt, stopping!")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Info().Err(err).Send()
		}
	}()
}

func loggerSetup(pretty bool, level int) {
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zerolog.SetGlobalLevel(zerolog.Level(level))
}
