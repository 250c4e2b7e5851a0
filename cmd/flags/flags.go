package flags

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/ruteri/tee-capsule-ledger/api"
	"github.com/ruteri/tee-capsule-ledger/common"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/storage"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		NonceTTL:                 cCtx.Duration(NonceTTLFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// StorageBackend builds the backend described by the storage flag, or nil
// when no location is configured.
func StorageBackend(cCtx *cli.Context, logger *slog.Logger) (interfaces.StorageBackend, error) {
	uris := cCtx.StringSlice(StorageFlag.Name)
	if len(uris) == 0 {
		return nil, nil
	}
	locs, err := storage.ParseLocations(uris)
	if err != nil {
		return nil, err
	}
	return storage.NewStorageBackendFactory(logger).CreateMultiBackend(locs)
}

// LoadKey reads a hex encoded secp256k1 private key from the key flag, or
// from the file it names when prefixed with "@".
func LoadKey(cCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	value := cCtx.String(KeyFlag.Name)
	if value == "" {
		return nil, errors.New("no key given, use --key")
	}
	if path, ok := strings.CutPrefix(value, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		value = strings.TrimSpace(string(data))
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	return key, nil
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var GenesisFlag = &cli.StringFlag{
	Name:  "genesis",
	Usage: "TOML genesis file; the built-in defaults are used when empty",
}

var StorageFlag = &cli.StringSliceFlag{
	Name:  "storage",
	Usage: "storage location URI for snapshots and shares (file://, s3://, ipfs://, vault://); repeat for redundancy",
}

var RestoreFlag = &cli.StringFlag{
	Name:  "restore",
	Usage: "content id of a snapshot to restore from storage instead of applying genesis",
}

var SnapshotIntervalFlag = &cli.DurationFlag{
	Name:  "snapshot-interval",
	Value: 5 * time.Minute,
	Usage: "how often to save a snapshot to storage when the ledger changed; 0 disables",
}

var NonceTTLFlag = &cli.DurationFlag{
	Name:  "nonce-ttl",
	Value: 10 * time.Minute,
	Usage: "how long used request nonces are remembered",
}

var ServerURLFlag = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:8080",
	EnvVars: []string{"LEDGER_SERVER"},
	Usage:   "ledger API base URL",
}

var KeyFlag = &cli.StringFlag{
	Name:    "key",
	EnvVars: []string{"LEDGER_KEY"},
	Usage:   "hex secp256k1 private key signing requests, or @file to read it from a file",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
