package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"finfeed/internal/config"
	"finfeed/internal/logging"
	"finfeed/internal/provider"
	"finfeed/internal/yahoo"
)

const clientKey = "client"

func newApp() *cli.App {
	return &cli.App{
		Name:  "fetch",
		Usage: "query Yahoo Finance from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (YAML or JSON)",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall deadline for the command",
				Value: 30 * time.Second,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "overrides log.level from the config",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "tickers fetched at once",
				Value: 4,
			},
		},
		Commands: []*cli.Command{
			quoteCommand(),
			summaryCommand(),
			historyCommand(),
			optionsCommand(),
			screenCommand(),
			stockCommand(),
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if lvl := c.String("log-level"); lvl != "" {
				cfg.Log.Level = lvl
			}
			log, err := logging.New(cfg.Log, c.App.ErrWriter)
			if err != nil {
				return err
			}
			client, _, err := yahoo.NewFromConfig(cfg.Yahoo, log, nil)
			if err != nil {
				return err
			}
			if c.App.Metadata == nil {
				c.App.Metadata = map[string]any{}
			}
			c.App.Metadata[clientKey] = client
			return nil
		},
	}
}

func clientFrom(c *cli.Context) *yahoo.Client {
	client, _ := c.App.Metadata[clientKey].(*yahoo.Client)
	return client
}

// commandContext applies the --timeout flag to the command's context.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, c.Duration("timeout"))
}

func tickers(c *cli.Context) ([]string, error) {
	var out []string
	for _, arg := range c.Args().Slice() {
		for _, t := range strings.Split(arg, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, strings.ToUpper(t))
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("at least one ticker is required")
	}
	return out, nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// eachTicker runs fn for every ticker with bounded concurrency and prints the
// results keyed by ticker. The first failure cancels the rest.
func eachTicker[T any](c *cli.Context, fn func(ctx context.Context, ticker string) (T, error)) error {
	list, err := tickers(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]T, len(list))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.Int("concurrency")))
	for _, t := range list {
		g.Go(func() error {
			v, err := fn(ctx, t)
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			mu.Lock()
			results[t] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return printJSON(c, results)
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote",
		Usage:     "normalized per-session quotes",
		ArgsUsage: "TICKER [TICKER...]",
		Action: func(c *cli.Context) error {
			list, err := tickers(c)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(c)
			defer cancel()
			p := yahoo.NewProvider(clientFrom(c), yahoo.WithConcurrency(c.Int("concurrency")))
			quotes, err := p.Fetch(ctx, list)
			if err != nil {
				return err
			}
			return printJSON(c, struct {
				Quotes []provider.Quote `json:"quotes"`
			}{quotes})
		},
	}
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "quote summary modules",
		ArgsUsage: "TICKER [TICKER...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "modules",
				Aliases: []string{"m"},
				Usage:   "modules to request",
				Value:   cli.NewStringSlice(yahoo.DefaultModules...),
			},
		},
		Action: func(c *cli.Context) error {
			modules := c.StringSlice("modules")
			return eachTicker(c, func(ctx context.Context, t string) (*yahoo.QuoteSummaryResult, error) {
				return clientFrom(c).QuoteSummary(ctx, t, modules...)
			})
		},
	}
}

type history struct {
	Meta      *yahoo.ChartMeta        `json:"meta"`
	Prices    []yahoo.HistoricalPrice `json:"prices"`
	Dividends []yahoo.Dividend        `json:"dividends,omitempty"`
	Splits    []yahoo.Split           `json:"splits,omitempty"`
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "historical prices, dividends and splits",
		ArgsUsage: "TICKER [TICKER...]",
		Flags: []cli.Flag{
			&cli.TimestampFlag{Name: "start", Layout: time.DateOnly, Timezone: time.UTC, Usage: "first day (YYYY-MM-DD)"},
			&cli.TimestampFlag{Name: "end", Layout: time.DateOnly, Timezone: time.UTC, Usage: "last day (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "interval", Aliases: []string{"i"}, Value: string(yahoo.OneDay), Usage: "bar size, e.g. 1d, 1wk, 1mo"},
			&cli.BoolFlag{Name: "no-dividends", Usage: "skip dividend events"},
			&cli.BoolFlag{Name: "no-splits", Usage: "skip split events"},
		},
		Action: func(c *cli.Context) error {
			interval, err := yahoo.ParseInterval(c.String("interval"))
			if err != nil {
				return err
			}
			opts := yahoo.ChartOptions{
				Interval:      interval,
				SkipDividends: c.Bool("no-dividends"),
				SkipSplits:    c.Bool("no-splits"),
			}
			if ts := c.Timestamp("start"); ts != nil {
				opts.Start = *ts
			}
			if ts := c.Timestamp("end"); ts != nil {
				opts.End = *ts
			}
			return eachTicker(c, func(ctx context.Context, t string) (history, error) {
				res, err := clientFrom(c).Chart(ctx, t, opts)
				if err != nil {
					return history{}, err
				}
				return history{
					Meta:      res.Metadata(),
					Prices:    res.HistoricalPrices(),
					Dividends: res.Dividends(),
					Splits:    res.Splits(),
				}, nil
			})
		},
	}
}

func optionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "options",
		Usage:     "option expirations or the chain for one expiration",
		ArgsUsage: "TICKER [TICKER...]",
		Flags: []cli.Flag{
			&cli.TimestampFlag{Name: "expiration", Aliases: []string{"e"}, Layout: time.DateOnly, Timezone: time.UTC, Usage: "expiration day (YYYY-MM-DD); lists expirations when omitted"},
		},
		Action: func(c *cli.Context) error {
			exp := c.Timestamp("expiration")
			if exp == nil {
				return eachTicker(c, func(ctx context.Context, t string) ([]time.Time, error) {
					return clientFrom(c).ExpirationDates(ctx, t)
				})
			}
			return eachTicker(c, func(ctx context.Context, t string) (*yahoo.OptionChain, error) {
				return clientFrom(c).OptionsForExpiration(ctx, t, *exp)
			})
		},
	}
}

func screenCommand() *cli.Command {
	return &cli.Command{
		Name:  "screen",
		Usage: "run an equity screener",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "FIELD:OP:VALUE, e.g. intradaymarketcap:gt:2000000000 or region:eq:us",
			},
			&cli.IntFlag{Name: "size", Value: 25, Usage: "results per page"},
			&cli.IntFlag{Name: "offset", Usage: "results to skip"},
			&cli.StringFlag{Name: "sort", Value: "marketcap", Usage: "sort field"},
			&cli.BoolFlag{Name: "asc", Usage: "ascending order"},
		},
		Action: func(c *cli.Context) error {
			operands := make([]yahoo.ScreenerOperand, 0, len(c.StringSlice("filter")))
			for _, f := range c.StringSlice("filter") {
				op, err := parseFilter(f)
				if err != nil {
					return err
				}
				operands = append(operands, op)
			}
			req := yahoo.NewScreenerRequest(operands...)
			req.Size = c.Int("size")
			req.Offset = c.Int("offset")
			req.SortField = c.String("sort")
			if c.Bool("asc") {
				req.SortType = "ASC"
			}

			ctx, cancel := commandContext(c)
			defer cancel()
			res, err := clientFrom(c).Screen(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(c, res)
		},
	}
}

// parseFilter turns FIELD:OP:VALUE into an operand. Numeric values are sent
// as JSON numbers.
func parseFilter(s string) (yahoo.ScreenerOperand, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return yahoo.ScreenerOperand{}, fmt.Errorf("filter %q: want FIELD:OP:VALUE", s)
	}
	var value any = parts[2]
	if n, err := strconv.ParseFloat(parts[2], 64); err == nil {
		value = n
	}
	return yahoo.NewScreenerOperand(parts[0], strings.ToUpper(parts[1]), value), nil
}

func stockCommand() *cli.Command {
	return &cli.Command{
		Name:      "stock",
		Usage:     "legacy CSV pricing, volume, averages, dividends and ratios",
		ArgsUsage: "TICKER [TICKER...]",
		Action: func(c *cli.Context) error {
			return eachTicker(c, func(ctx context.Context, t string) (*yahoo.Stock, error) {
				return clientFrom(c).RetrieveStock(ctx, t)
			})
		},
	}
}
