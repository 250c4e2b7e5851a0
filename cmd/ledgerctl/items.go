package main

import (
	"context"

	"github.com/ruteri/tee-capsule-ledger/api"
	"github.com/ruteri/tee-capsule-ledger/api/clients"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/ledger"
	"github.com/urfave/cli/v2"
)

func itemOp(name, usage string, op func(*clients.LedgerClient, context.Context, interfaces.ItemID) (ledger.Receipt, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<item>",
		Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
			id, err := itemArg(cCtx, 0)
			if err != nil {
				return nil, err
			}
			return op(c, ctx, id)
		}),
	}
}

func itemDataOp(name, usage string, op func(*clients.LedgerClient, context.Context, interfaces.ItemID, interfaces.OffchainData) (ledger.Receipt, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<item> <data>",
		Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
			id, err := itemArg(cCtx, 0)
			if err != nil {
				return nil, err
			}
			data, err := dataArg(cCtx, 1)
			if err != nil {
				return nil, err
			}
			return op(c, ctx, id, data)
		}),
	}
}

var itemCommand = &cli.Command{
	Name:  "item",
	Usage: "Item queries and operations",
	Subcommands: []*cli.Command{
		{
			Name:      "get",
			Usage:     "Show an item with its delegation, payloads and open hand-off",
			ArgsUsage: "<item>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := itemArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				return c.Item(ctx, id)
			}),
		},
		{
			Name:  "mint",
			Usage: "Mint an item owned by the signer",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "data", Usage: "item metadata, 0x-hex or text"},
				&cli.StringFlag{Name: "secret", Usage: "attach a secret reference in the same operation"},
				&cli.UintFlag{Name: "royalty", Usage: "royalty in whole percent"},
				&cli.Int64Flag{Name: "collection", Value: -1, Usage: "collection to mint into"},
				&cli.BoolFlag{Name: "soulbound", Usage: "only the creator may transfer the item"},
			},
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				req := api.MintRequest{MintParams: ledger.MintParams{
					Royalty:   interfaces.PermillFromPercent(uint32(cCtx.Uint("royalty"))),
					Soulbound: cCtx.Bool("soulbound"),
				}}
				var err error
				if req.OffchainData, err = parseData(cCtx.String("data")); err != nil {
					return nil, err
				}
				if s := cCtx.String("secret"); s != "" {
					if req.Secret, err = parseData(s); err != nil {
						return nil, err
					}
				}
				if col := cCtx.Int64("collection"); col >= 0 {
					id := interfaces.CollectionID(col)
					req.CollectionID = &id
				}
				return c.Mint(ctx, req)
			}),
		},
		itemOp("burn", "Burn an item", (*clients.LedgerClient).Burn),
		{
			Name:      "transfer",
			Usage:     "Transfer an item",
			ArgsUsage: "<item> <recipient>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := itemArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				to, err := accountArg(cCtx, 1)
				if err != nil {
					return nil, err
				}
				return c.Transfer(ctx, id, to)
			}),
		},
		{
			Name:      "delegate",
			Usage:     "Delegate viewing an item; without a viewer the delegation is cleared",
			ArgsUsage: "<item> [viewer]",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := itemArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				var viewer *interfaces.AccountID
				if cCtx.Args().Len() > 1 {
					v, err := accountArg(cCtx, 1)
					if err != nil {
						return nil, err
					}
					viewer = &v
				}
				return c.Delegate(ctx, id, viewer)
			}),
		},
		{
			Name:      "royalty",
			Usage:     "Set the royalty of an item in whole percent",
			ArgsUsage: "<item>",
			Flags:     []cli.Flag{&cli.UintFlag{Name: "percent", Required: true}},
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := itemArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				return c.SetRoyalty(ctx, id, interfaces.PermillFromPercent(uint32(cCtx.Uint("percent"))))
			}),
		},
		{
			Name:      "add-to-collection",
			Usage:     "Add an item to a collection",
			ArgsUsage: "<item> <collection>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := itemArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				col, err := collectionArg(cCtx, 1)
				if err != nil {
					return nil, err
				}
				return c.AddItemToCollection(ctx, id, col)
			}),
		},
		itemDataOp("attach-secret", "Attach a secret reference and hand it off to a cluster", (*clients.LedgerClient).AttachSecret),
		itemDataOp("convert", "Convert an item into a capsule", (*clients.LedgerClient).ConvertToCapsule),
		itemDataOp("set-payload", "Replace the capsule payload reference", (*clients.LedgerClient).SetCapsulePayload),
		itemOp("notify-key-update", "Start a capsule key rotation hand-off", (*clients.LedgerClient).NotifyKeyUpdate),
		{
			Name:      "ack",
			Usage:     "Acknowledge, as an enclave, holding a shard of an item's payload",
			ArgsUsage: "<item> <secret|capsule>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := itemArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				kind, err := kindArg(cCtx, 1)
				if err != nil {
					return nil, err
				}
				return c.AddShard(ctx, id, kind)
			}),
		},
		{
			Name:      "sync",
			Usage:     "Show the open hand-off of an item's payload",
			ArgsUsage: "<item> <secret|capsule>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := itemArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				kind, err := kindArg(cCtx, 1)
				if err != nil {
					return nil, err
				}
				return c.SyncSession(ctx, id, kind)
			}),
		},
	},
}

var collectionCommand = &cli.Command{
	Name:  "collection",
	Usage: "Collection queries and operations",
	Subcommands: []*cli.Command{
		{
			Name:      "get",
			ArgsUsage: "<collection>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := collectionArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				return c.Collection(ctx, id)
			}),
		},
		{
			Name:  "create",
			Usage: "Create a collection owned by the signer",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "data", Usage: "collection metadata, 0x-hex or text"},
				&cli.UintFlag{Name: "limit", Usage: "maximum number of items"},
			},
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				data, err := parseData(cCtx.String("data"))
				if err != nil {
					return nil, err
				}
				var limit *uint32
				if cCtx.IsSet("limit") {
					l := uint32(cCtx.Uint("limit"))
					limit = &l
				}
				return c.CreateCollection(ctx, data, limit)
			}),
		},
		collectionOp("burn", "Burn an empty collection", (*clients.LedgerClient).BurnCollection),
		collectionOp("close", "Close a collection to new items", (*clients.LedgerClient).CloseCollection),
		{
			Name:      "limit",
			Usage:     "Set the size limit of a collection",
			ArgsUsage: "<collection>",
			Flags:     []cli.Flag{&cli.UintFlag{Name: "limit", Required: true}},
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := collectionArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				return c.LimitCollection(ctx, id, uint32(cCtx.Uint("limit")))
			}),
		},
		{
			Name:      "metadata",
			Usage:     "Replace the metadata of a collection",
			ArgsUsage: "<collection> <data>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := collectionArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				data, err := dataArg(cCtx, 1)
				if err != nil {
					return nil, err
				}
				return c.SetCollectionMetadata(ctx, id, data)
			}),
		},
	},
}

func collectionOp(name, usage string, op func(*clients.LedgerClient, context.Context, interfaces.CollectionID) (ledger.Receipt, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<collection>",
		Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
			id, err := collectionArg(cCtx, 0)
			if err != nil {
				return nil, err
			}
			return op(c, ctx, id)
		}),
	}
}
