package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ruteri/tee-capsule-ledger/cmd/flags"
	"github.com/ruteri/tee-capsule-ledger/common"
	"github.com/ruteri/tee-capsule-ledger/genesis"
	"github.com/ruteri/tee-capsule-ledger/httpserver"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/ledger"
	"github.com/ruteri/tee-capsule-ledger/metrics"
	"github.com/urfave/cli/v2"
)

var serveFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.GenesisFlag,
	flags.StorageFlag,
	flags.RestoreFlag,
	flags.SnapshotIntervalFlag,
	flags.NonceTTLFlag,
	flags.LogServiceFlagFn("ledgerd"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "ledgerd",
		Usage:  "Serve the capsule ledger API",
		Flags:  serveFlags,
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:  "genesis",
				Usage: "Print the default genesis file",
				Action: func(cCtx *cli.Context) error {
					return genesis.Default().Encode(os.Stdout)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadGenesis(cCtx *cli.Context) (genesis.Genesis, error) {
	path := cCtx.String(flags.GenesisFlag.Name)
	if path == "" {
		return genesis.Default(), nil
	}
	return genesis.Load(path)
}

func serve(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))

	g, err := loadGenesis(cCtx)
	if err != nil {
		logger.Error("Failed to load genesis", "err", err)
		return err
	}

	metricsSrv, err := metrics.New(common.MetricsNamespace, cfg.MetricsAddr)
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}
	opts := []ledger.Option{ledger.WithObserver(metricsSrv)}

	backend, err := flags.StorageBackend(cCtx, logger)
	if err != nil {
		logger.Error("Failed to configure storage", "err", err)
		return err
	}

	var l *ledger.Ledger
	if restore := cCtx.String(flags.RestoreFlag.Name); restore != "" {
		if backend == nil {
			return errors.New("--restore requires at least one --storage location")
		}
		id, err := interfaces.ParseContentID(restore)
		if err != nil {
			return err
		}
		logger.Info("Restoring ledger from snapshot", "snapshot", id.String(), "storage", backend.Name())
		l, err = ledger.LoadSnapshot(cCtx.Context, backend, id, g.Ledger, logger, opts...)
		if err != nil {
			logger.Error("Failed to restore snapshot", "err", err)
			return err
		}
	} else {
		l, err = g.Build(logger, opts...)
		if err != nil {
			logger.Error("Failed to build ledger from genesis", "err", err)
			return err
		}
	}
	logger.Info("Ledger ready", "ledger", l.String(), "lastSeq", l.LastSeq())

	handler := httpserver.NewHandler(l, httpserver.NewAuthenticator(cfg.NonceTTL), logger)
	server := httpserver.New(cfg, handler, metricsSrv)
	server.RunInBackground()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if interval := cCtx.Duration(flags.SnapshotIntervalFlag.Name); backend != nil && interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RunSnapshots(ctx, backend, interval, func(id interfaces.ContentID) {
				logger.Info("Snapshot saved", "snapshot", id.String(), "lastSeq", l.LastSeq())
			})
		}()
	}

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	cancel()
	wg.Wait()
	logger.Info("Server shutdown complete")
	return nil
}
