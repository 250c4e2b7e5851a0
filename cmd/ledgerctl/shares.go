package main

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-capsule-ledger/cmd/flags"
	"github.com/ruteri/tee-capsule-ledger/common"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/shares"
	"github.com/urfave/cli/v2"
)

func shareStorage(cCtx *cli.Context) (interfaces.StorageBackend, error) {
	backend, err := flags.StorageBackend(cCtx, common.LoggerText(slog.LevelWarn))
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("no storage configured, use --%s", flags.StorageFlag.Name)
	}
	return backend, nil
}

var sharesCommand = &cli.Command{
	Name:  "shares",
	Usage: "Split, open and combine sealed payload shares",
	Subcommands: []*cli.Command{
		{
			Name:  "split",
			Usage: "Seal one share of a payload per enclave public key and store the bundle",
			Flags: []cli.Flag{
				flags.StorageFlag,
				&cli.StringFlag{Name: "item", Required: true},
				&cli.StringFlag{Name: "kind", Value: "secret", Usage: "secret or capsule"},
				&cli.StringFlag{Name: "payload", Required: true, Usage: "file holding the payload"},
				&cli.IntFlag{Name: "threshold", Value: 2, Usage: "shares needed to recover the payload"},
				&cli.StringSliceFlag{Name: "recipient", Required: true, Usage: "0x-hex uncompressed public key of an enclave; repeat per enclave"},
			},
			Action: func(cCtx *cli.Context) error {
				item, err := interfaces.ParseItemID(cCtx.String("item"))
				if err != nil {
					return err
				}
				var kind interfaces.PayloadKind
				if err := kind.UnmarshalText([]byte(cCtx.String("kind"))); err != nil {
					return err
				}
				payload, err := os.ReadFile(cCtx.String("payload"))
				if err != nil {
					return err
				}
				recipients, err := parsePublicKeys(cCtx.StringSlice("recipient"))
				if err != nil {
					return err
				}

				bundle, err := shares.Split(item, kind, payload, cCtx.Int("threshold"), recipients)
				if err != nil {
					return err
				}
				data, err := bundle.Marshal()
				if err != nil {
					return err
				}
				backend, err := shareStorage(cCtx)
				if err != nil {
					return err
				}
				id, err := backend.Store(cCtx.Context, data, interfaces.ShareType)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"bundle":        id.String(),
					"offchain_data": "0x" + id.String(),
					"enclaves":      len(bundle.Shares),
				})
			},
		},
		{
			Name:      "open",
			Usage:     "Unseal the share addressed to --key from a stored bundle",
			ArgsUsage: "<bundle>",
			Flags:     []cli.Flag{flags.StorageFlag},
			Action: func(cCtx *cli.Context) error {
				s, err := arg(cCtx, 0, "bundle")
				if err != nil {
					return err
				}
				id, err := interfaces.ParseContentID(s)
				if err != nil {
					return err
				}
				key, err := flags.LoadKey(cCtx)
				if err != nil {
					return err
				}
				backend, err := shareStorage(cCtx)
				if err != nil {
					return err
				}
				data, err := backend.Fetch(cCtx.Context, id, interfaces.ShareType)
				if err != nil {
					return err
				}
				bundle, err := shares.UnmarshalBundle(data)
				if err != nil {
					return err
				}
				part, err := bundle.Open(key)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"item":      bundle.ItemID,
					"kind":      bundle.Kind,
					"threshold": bundle.Threshold,
					"share":     "0x" + hex.EncodeToString(part),
				})
			},
		},
		{
			Name:      "combine",
			Usage:     "Recover a payload from unsealed shares and write it to stdout",
			ArgsUsage: "<share>...",
			Flags:     []cli.Flag{&cli.IntFlag{Name: "threshold", Value: 2}},
			Action: func(cCtx *cli.Context) error {
				var parts [][]byte
				for _, s := range cCtx.Args().Slice() {
					part, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
					if err != nil {
						return fmt.Errorf("invalid share %q: %w", s, err)
					}
					parts = append(parts, part)
				}
				payload, err := shares.Combine(cCtx.Int("threshold"), parts)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(payload)
				return err
			},
		},
	},
}

func parsePublicKeys(values []string) ([]*ecdsa.PublicKey, error) {
	keys := make([]*ecdsa.PublicKey, 0, len(values))
	for _, v := range values {
		raw, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid public key %q: %w", v, err)
		}
		pub, err := crypto.UnmarshalPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid public key %q: %w", v, err)
		}
		keys = append(keys, pub)
	}
	return keys, nil
}
