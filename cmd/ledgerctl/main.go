package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-capsule-ledger/api/clients"
	"github.com/ruteri/tee-capsule-ledger/cmd/flags"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "ledgerctl",
		Usage: "Query and operate the capsule ledger",
		Flags: []cli.Flag{
			flags.ServerURLFlag,
			flags.KeyFlag,
		},
		Commands: []*cli.Command{
			keygenCommand,
			itemCommand,
			collectionCommand,
			enclaveCommand,
			adminCommand,
			sharesCommand,
			{
				Name:      "balance",
				Usage:     "Show the free balance of an account",
				ArgsUsage: "<account>",
				Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
					account, err := accountArg(cCtx, 0)
					if err != nil {
						return nil, err
					}
					return c.Balance(ctx, account)
				}),
			},
			{
				Name:      "items",
				Usage:     "List the items owned by an account",
				ArgsUsage: "<account>",
				Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
					account, err := accountArg(cCtx, 0)
					if err != nil {
						return nil, err
					}
					return c.ItemsOf(ctx, account)
				}),
			},
			{
				Name:  "fees",
				Usage: "Show the current fees",
				Action: withClient(func(ctx context.Context, c *clients.LedgerClient, _ *cli.Context) (any, error) {
					return c.Fees(ctx)
				}),
			},
			{
				Name:  "clusters",
				Usage: "List clusters and their operators",
				Action: withClient(func(ctx context.Context, c *clients.LedgerClient, _ *cli.Context) (any, error) {
					return c.Clusters(ctx)
				}),
			},
			{
				Name:  "events",
				Usage: "List committed events",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "since", Usage: "only events after this sequence number"},
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "maximum number of events"},
				},
				Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
					return c.Events(ctx, cCtx.Uint64("since"), cCtx.Int("limit"))
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "Generate a secp256k1 key and print it with its account",
	Action: func(cCtx *cli.Context) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"account":    crypto.PubkeyToAddress(key.PublicKey).Hex(),
			"public_key": "0x" + hex.EncodeToString(crypto.FromECDSAPub(&key.PublicKey)),
			"key":        hex.EncodeToString(crypto.FromECDSA(key)),
		})
	},
}

type clientFunc func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error)

// withClient runs fn with a client for the configured server and prints
// its result. The key is optional so that queries work without one.
func withClient(fn clientFunc) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		c := clients.NewLedgerClient(cCtx.String(flags.ServerURLFlag.Name), nil)
		if cCtx.IsSet(flags.KeyFlag.Name) {
			key, err := flags.LoadKey(cCtx)
			if err != nil {
				return err
			}
			c = clients.NewLedgerClient(cCtx.String(flags.ServerURLFlag.Name), key)
		}
		out, err := fn(cCtx.Context, c, cCtx)
		if err != nil {
			return err
		}
		return printJSON(out)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func arg(cCtx *cli.Context, i int, name string) (string, error) {
	if cCtx.Args().Len() <= i {
		return "", fmt.Errorf("missing argument <%s>", name)
	}
	return cCtx.Args().Get(i), nil
}

func itemArg(cCtx *cli.Context, i int) (interfaces.ItemID, error) {
	s, err := arg(cCtx, i, "item")
	if err != nil {
		return 0, err
	}
	return interfaces.ParseItemID(s)
}

func collectionArg(cCtx *cli.Context, i int) (interfaces.CollectionID, error) {
	s, err := arg(cCtx, i, "collection")
	if err != nil {
		return 0, err
	}
	return interfaces.ParseCollectionID(s)
}

func clusterArg(cCtx *cli.Context, i int) (interfaces.ClusterID, error) {
	s, err := arg(cCtx, i, "cluster")
	if err != nil {
		return 0, err
	}
	return interfaces.ParseClusterID(s)
}

func accountArg(cCtx *cli.Context, i int) (interfaces.AccountID, error) {
	s, err := arg(cCtx, i, "account")
	if err != nil {
		return interfaces.AccountID{}, err
	}
	return interfaces.NewAccountIDFromHex(s)
}

// dataArg reads offchain data given as 0x-hex or as a plain string.
func dataArg(cCtx *cli.Context, i int) (interfaces.OffchainData, error) {
	s, err := arg(cCtx, i, "data")
	if err != nil {
		return nil, err
	}
	return parseData(s)
}

func parseData(s string) (interfaces.OffchainData, error) {
	if strings.HasPrefix(s, "0x") {
		var d interfaces.OffchainData
		if err := d.UnmarshalText([]byte(s)); err != nil {
			return nil, err
		}
		return d, nil
	}
	return interfaces.OffchainData(s), nil
}

func kindArg(cCtx *cli.Context, i int) (interfaces.PayloadKind, error) {
	s, err := arg(cCtx, i, "secret|capsule")
	if err != nil {
		return 0, err
	}
	var kind interfaces.PayloadKind
	err = kind.UnmarshalText([]byte(s))
	return kind, err
}
