package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"whalehub/app"
	"whalehub/cmd/internal/secret"
	"whalehub/config"
	"whalehub/rpc"
)

const (
	tokenEnv  = "WHALEHUB_TOKEN"
	secretEnv = "WHALEHUB_JWT_SECRET"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "whalectl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	a := cli.NewApp()
	a.Name = "whalectl"
	a.Usage = "query and operate a whalehubd node"
	a.Version = "0.1.0"
	a.Writer = os.Stdout
	a.Flags = []cli.Flag{
		cli.StringFlag{Name: "node", Usage: "API base URL", Value: "http://127.0.0.1:8080", EnvVar: "WHALEHUB_NODE"},
		cli.StringFlag{Name: "field", Usage: "print only this gjson path of the response"},
		cli.DurationFlag{Name: "timeout", Usage: "request timeout", Value: 15 * time.Second},
	}
	a.Commands = []cli.Command{
		{
			Name:   "status",
			Usage:  "show height, app hash and module accounts",
			Action: queryAction(func(*cli.Context) (string, url.Values, error) { return "/v1/status", nil, nil }),
		},
		{
			Name:  "epoch",
			Usage: "epoch manager queries",
			Subcommands: []cli.Command{
				{Name: "current", Action: queryAction(fixed("/v1/epochs/current"))},
				{Name: "config", Action: queryAction(fixed("/v1/epochs/config"))},
				{Name: "hooks", Action: queryAction(fixed("/v1/epochs/hooks"))},
				{Name: "get", ArgsUsage: "<id>", Action: queryAction(withArg("/v1/epochs/%s"))},
			},
		},
		{
			Name:  "bonding",
			Usage: "bonding manager queries",
			Subcommands: []cli.Command{
				{Name: "config", Action: queryAction(fixed("/v1/bonding/config"))},
				{
					Name:  "bonded",
					Flags: []cli.Flag{cli.StringFlag{Name: "address", Usage: "bonder address; omit for totals"}},
					Action: queryAction(func(c *cli.Context) (string, url.Values, error) {
						q := url.Values{}
						if c.IsSet("address") {
							q.Set("address", c.String("address"))
						}
						return "/v1/bonding/bonded", q, nil
					}),
				},
				{
					Name:      "unbonding",
					ArgsUsage: "<address>",
					Flags:     []cli.Flag{cli.StringFlag{Name: "denom"}},
					Action:    queryAction(withArgQuery("/v1/bonding/unbonding/%s", "denom")),
				},
				{
					Name:      "withdrawable",
					ArgsUsage: "<address>",
					Flags:     []cli.Flag{cli.StringFlag{Name: "denom"}},
					Action:    queryAction(withArgQuery("/v1/bonding/withdrawable/%s", "denom")),
				},
				{
					Name:      "weight",
					ArgsUsage: "<address>",
					Flags:     []cli.Flag{cli.StringFlag{Name: "epoch_id"}},
					Action:    queryAction(withArgQuery("/v1/bonding/weight/%s", "epoch_id")),
				},
				{Name: "global-index", Action: queryAction(fixed("/v1/bonding/global-index"))},
				{Name: "claimable", Action: queryAction(fixed("/v1/bonding/claimable"))},
				{Name: "bucket", ArgsUsage: "<epoch id>", Action: queryAction(withArg("/v1/bonding/buckets/%s"))},
			},
		},
		{
			Name:  "incentives",
			Usage: "incentive manager queries",
			Subcommands: []cli.Command{
				{Name: "config", Action: queryAction(fixed("/v1/incentives/config"))},
				{
					Name: "list",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "lp_denom"},
						cli.StringFlag{Name: "incentive_denom"},
						cli.StringFlag{Name: "start_after"},
						cli.StringFlag{Name: "limit"},
					},
					Action: queryAction(func(c *cli.Context) (string, url.Values, error) {
						return "/v1/incentives", flagValues(c, "lp_denom", "incentive_denom", "start_after", "limit"), nil
					}),
				},
				{Name: "get", ArgsUsage: "<identifier>", Action: queryAction(withArg("/v1/incentives/%s"))},
			},
		},
		{
			Name:      "positions",
			Usage:     "list the positions of an address",
			ArgsUsage: "<address>",
			Flags:     []cli.Flag{cli.StringFlag{Name: "open", Usage: "true or false"}},
			Action:    queryAction(withArgQuery("/v1/positions/%s", "open")),
		},
		{
			Name:      "rewards",
			Usage:     "show claimable bonding and incentive rewards",
			ArgsUsage: "<address>",
			Action:    queryAction(withArg("/v1/rewards/%s")),
		},
		{
			Name:      "balances",
			ArgsUsage: "<address>",
			Action:    queryAction(withArg("/v1/balances/%s")),
		},
		{
			Name:  "events",
			Usage: "query indexed events",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "type"},
				cli.StringFlag{Name: "key"},
				cli.StringFlag{Name: "value"},
				cli.StringFlag{Name: "after"},
				cli.StringFlag{Name: "limit"},
			},
			Action: queryAction(func(c *cli.Context) (string, url.Values, error) {
				return "/v1/indexer/events", flagValues(c, "type", "key", "value", "after", "limit"), nil
			}),
		},
		{
			Name:      "tx",
			Usage:     "submit a message envelope",
			ArgsUsage: "<msg type>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "sender", Usage: "sender address"},
				cli.StringFlag{Name: "funds", Usage: "comma separated coins, e.g. 1000uwhale,5uLP"},
				cli.StringFlag{Name: "msg", Usage: "message body as JSON", Value: "{}"},
				cli.StringFlag{Name: "token", Usage: "bearer token", EnvVar: tokenEnv},
			},
			Action: txAction,
		},
		{
			Name:        "msg-types",
			Usage:       "list message types accepted by tx",
			Description: strings.Join(app.MsgTypes(), "\n"),
			Action:      queryAction(fixed("/v1/msg-types")),
		},
		{
			Name:  "token",
			Usage: "API token helpers",
			Subcommands: []cli.Command{
				{
					Name:  "issue",
					Usage: "sign a bearer token with the node secret",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "subject", Usage: "address the token acts for"},
						cli.StringFlag{Name: "issuer", Value: "whalehub"},
						cli.DurationFlag{Name: "ttl", Value: time.Hour},
						cli.StringSliceFlag{Name: "scope", Usage: "extra scopes, e.g. " + rpc.ScopeAnySender},
					},
					Action: issueAction,
				},
			},
		},
	}
	return a
}

type queryFunc func(*cli.Context) (string, url.Values, error)

func fixed(path string) queryFunc {
	return func(*cli.Context) (string, url.Values, error) { return path, nil, nil }
}

func withArg(format string) queryFunc {
	return func(c *cli.Context) (string, url.Values, error) {
		arg := strings.TrimSpace(c.Args().First())
		if arg == "" {
			return "", nil, fmt.Errorf("missing argument %s", c.Command.ArgsUsage)
		}
		return fmt.Sprintf(format, url.PathEscape(arg)), nil, nil
	}
}

func withArgQuery(format string, keys ...string) queryFunc {
	base := withArg(format)
	return func(c *cli.Context) (string, url.Values, error) {
		path, _, err := base(c)
		if err != nil {
			return "", nil, err
		}
		return path, flagValues(c, keys...), nil
	}
}

func flagValues(c *cli.Context, keys ...string) url.Values {
	q := url.Values{}
	for _, k := range keys {
		if v := strings.TrimSpace(c.String(k)); v != "" {
			q.Set(k, v)
		}
	}
	return q
}

func clientFor(c *cli.Context, token string) *client {
	return newClient(c.GlobalString("node"), token, c.GlobalDuration("timeout"))
}

func queryAction(fn queryFunc) func(*cli.Context) error {
	return func(c *cli.Context) error {
		path, query, err := fn(c)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
		defer cancel()
		body, err := clientFor(c, "").get(ctx, path, query)
		if err != nil {
			return err
		}
		return render(c.App.Writer, body, c.GlobalString("field"))
	}
}

func buildEnvelope(msgType, sender, funds, rawMsg string) (app.Envelope, error) {
	if strings.TrimSpace(msgType) == "" {
		return app.Envelope{}, fmt.Errorf("missing message type")
	}
	if strings.TrimSpace(sender) == "" {
		return app.Envelope{}, fmt.Errorf("--sender is required")
	}
	env := app.Envelope{Type: msgType, Sender: sender, Msg: json.RawMessage(rawMsg)}
	if funds = strings.TrimSpace(funds); funds != "" {
		coins, err := config.ParseCoins(strings.Split(funds, ","))
		if err != nil {
			return app.Envelope{}, err
		}
		env.Funds = coins
	}
	// Decoding locally catches typos before the round trip.
	if _, err := env.Decode(); err != nil {
		return app.Envelope{}, err
	}
	return env, nil
}

func txAction(c *cli.Context) error {
	env, err := buildEnvelope(c.Args().First(), c.String("sender"), c.String("funds"), c.String("msg"))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
	defer cancel()
	body, err := clientFor(c, c.String("token")).post(ctx, "/v1/tx", env)
	if err != nil {
		return err
	}
	return render(c.App.Writer, body, c.GlobalString("field"))
}

func issueAction(c *cli.Context) error {
	subject := strings.TrimSpace(c.String("subject"))
	if subject == "" {
		return fmt.Errorf("--subject is required")
	}
	key, err := secret.NewSource(secretEnv, "API signing secret", true).Get()
	if err != nil {
		return err
	}
	token, err := rpc.IssueToken(key, c.String("issuer"), subject, c.Duration("ttl"), c.StringSlice("scope")...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, token)
	return err
}
