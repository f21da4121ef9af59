// Command redisd is the process entrypoint: argument parsing, process-level
// logging setup, and the final wiring of config.Core + transport.Provider
// into server.Run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"redisd/internal/clock"
	"redisd/internal/config"
	"redisd/internal/logging"
	"redisd/internal/metrics"
	"redisd/internal/server"
	"redisd/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port        uint16
		replicaOf   string
		configPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "redisd",
		Short: "A RESP-speaking key/value server with primary/replica replication",
		RunE: func(cmd *cobra.Command, args []string) error {
			core := config.Default()
			portSet := cmd.Flags().Changed("port")
			replicaOfSet := cmd.Flags().Changed("replicaof")

			if portSet {
				core.Port = port
			}
			if replicaOfSet {
				addr, err := config.ParsePeerAddr(replicaOf)
				if err != nil {
					return err
				}
				core.ReplicaOf = &addr
			}

			if configPath != "" {
				file, err := config.LoadFile(configPath)
				if err != nil {
					return err
				}
				core, err = config.ApplyFile(core, file, portSet, replicaOfSet)
				if err != nil {
					return err
				}
			}

			log := logging.Must()
			var rec metrics.Recorder = metrics.Nop{}
			if metricsAddr != "" {
				rec = metrics.NewPrometheus()
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			srv := server.New(core, transport.TCP{}, clock.Real{}, log, rec, metricsAddr)
			if err := srv.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().Uint16Var(&port, "port", 6379, "listening port")
	cmd.Flags().StringVar(&replicaOf, "replicaof", "", `replicate from "<host> <port>"`)
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on (disabled if empty)")

	return cmd
}
