package main

import (
	"context"

	"github.com/ruteri/tee-capsule-ledger/api/clients"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
	"github.com/ruteri/tee-capsule-ledger/items"
	"github.com/ruteri/tee-capsule-ledger/ledger"
	"github.com/urfave/cli/v2"
)

var enclaveURIFlag = &cli.StringFlag{Name: "api-uri", Required: true, Usage: "URI the enclave API is reachable at"}

var enclaveCommand = &cli.Command{
	Name:  "enclave",
	Usage: "Enclave registration, signed by the operator",
	Subcommands: []*cli.Command{
		{
			Name:      "status",
			Usage:     "Show what the registry knows about an operator",
			ArgsUsage: "<operator>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				operator, err := accountArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				return c.EnclaveStatus(ctx, operator)
			}),
		},
		{
			Name:  "unregistrations",
			Usage: "List operators waiting to be removed",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, _ *cli.Context) (any, error) {
				return c.Unregistrations(ctx)
			}),
		},
		{
			Name:      "register",
			Usage:     "Register an enclave for assignment",
			ArgsUsage: "<enclave>",
			Flags:     []cli.Flag{enclaveURIFlag},
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				enclave, err := accountArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				return c.RegisterEnclave(ctx, enclave, cCtx.String(enclaveURIFlag.Name))
			}),
		},
		{
			Name:      "update",
			Usage:     "Request replacing the assigned enclave",
			ArgsUsage: "<enclave>",
			Flags:     []cli.Flag{enclaveURIFlag},
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				enclave, err := accountArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				return c.UpdateEnclave(ctx, enclave, cCtx.String(enclaveURIFlag.Name))
			}),
		},
		{
			Name:  "unregister",
			Usage: "Withdraw a registration or queue the assigned enclave for removal",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, _ *cli.Context) (any, error) {
				return c.UnregisterEnclave(ctx)
			}),
		},
		{
			Name:  "cancel-update",
			Usage: "Cancel a pending update request",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, _ *cli.Context) (any, error) {
				return c.CancelUpdate(ctx)
			}),
		},
	},
}

func operatorOp(name, usage string, op func(*clients.LedgerClient, context.Context, interfaces.AccountID) (ledger.Receipt, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<operator>",
		Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
			operator, err := accountArg(cCtx, 0)
			if err != nil {
				return nil, err
			}
			return op(c, ctx, operator)
		}),
	}
}

var adminCommand = &cli.Command{
	Name:  "admin",
	Usage: "Administrative operations, signed by a ledger admin",
	Subcommands: []*cli.Command{
		{
			Name:  "create-cluster",
			Usage: "Create an empty cluster",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, _ *cli.Context) (any, error) {
				return c.CreateCluster(ctx)
			}),
		},
		{
			Name:      "remove-cluster",
			Usage:     "Remove an empty cluster",
			ArgsUsage: "<cluster>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := clusterArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				return c.RemoveCluster(ctx, id)
			}),
		},
		{
			Name:      "assign",
			Usage:     "Assign a registered enclave to a cluster",
			ArgsUsage: "<operator> <cluster>",
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				operator, err := accountArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				id, err := clusterArg(cCtx, 1)
				if err != nil {
					return nil, err
				}
				return c.AssignEnclave(ctx, operator, id)
			}),
		},
		operatorOp("remove-registration", "Drop a pending registration", (*clients.LedgerClient).RemoveRegistration),
		operatorOp("remove-update", "Drop a pending update request", (*clients.LedgerClient).RemoveUpdate),
		operatorOp("remove-enclave", "Remove an assigned enclave from its cluster", (*clients.LedgerClient).RemoveEnclave),
		{
			Name:      "force-update",
			Usage:     "Replace an operator's enclave without a request",
			ArgsUsage: "<operator> <enclave>",
			Flags:     []cli.Flag{enclaveURIFlag},
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				operator, err := accountArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				enclave, err := accountArg(cCtx, 1)
				if err != nil {
					return nil, err
				}
				return c.ForceUpdateEnclave(ctx, operator, enclave, cCtx.String(enclaveURIFlag.Name))
			}),
		},
		{
			Name:      "set-fee",
			Usage:     "Set the mint, secret or capsule fee",
			ArgsUsage: "<mint|secret|capsule>",
			Flags:     []cli.Flag{&cli.Uint64Flag{Name: "fee", Required: true}},
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				kind, err := arg(cCtx, 0, "mint|secret|capsule")
				if err != nil {
					return nil, err
				}
				return c.SetFee(ctx, items.FeeKind(kind), interfaces.Balance(cCtx.Uint64("fee")))
			}),
		},
		{
			Name:      "set-marker",
			Usage:     "Set or clear an access marker on an item",
			ArgsUsage: "<item> <listed|rented|in_transmission>",
			Flags:     []cli.Flag{&cli.BoolFlag{Name: "clear", Usage: "clear the marker instead of setting it"}},
			Action: withClient(func(ctx context.Context, c *clients.LedgerClient, cCtx *cli.Context) (any, error) {
				id, err := itemArg(cCtx, 0)
				if err != nil {
					return nil, err
				}
				name, err := arg(cCtx, 1, "marker")
				if err != nil {
					return nil, err
				}
				marker, err := items.ParseMarker(name)
				if err != nil {
					return nil, err
				}
				return c.SetItemMarker(ctx, id, marker, !cCtx.Bool("clear"))
			}),
		},
	},
}
