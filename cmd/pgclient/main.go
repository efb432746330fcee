// Command pgclient is a minimal Postgres wire-protocol client: it
// connects, authenticates, runs statements via the simple query protocol
// (one given with -c, or one per line read from stdin until EOF), and
// renders each row result as a table.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brineport/pgwire/internal/client"
	"github.com/brineport/pgwire/internal/config"
	"github.com/brineport/pgwire/internal/pgwire"
	"github.com/brineport/pgwire/internal/ui"
	"github.com/brineport/pgwire/pkg/logger"
)

var (
	cfgFile  string
	noColor  bool
	queryArg string
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:           "pgclient",
	Short:         "A minimal Postgres wire-protocol client",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runClient,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Flags().StringVarP(&queryArg, "command", "c", "", "run one statement and exit")
}

func runClient(cmd *cobra.Command, args []string) error {
	out := ui.NewOutput(ui.FormatPlain, noColor, false)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.SetLevel(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)

	ctx := context.Background()
	conn, err := client.Dial(ctx, client.Config{
		Host:            cfg.Client.Host,
		Port:            cfg.Client.Port,
		User:            cfg.Client.User,
		Database:        cfg.Client.Database,
		ApplicationName: cfg.Client.ApplicationName,
		Password:        cfg.Client.Password,
		ReadTimeout:     cfg.Client.ReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer func() { _ = conn.Close() }()
	out.Success(fmt.Sprintf("connected to %s:%d", cfg.Client.Host, cfg.Client.Port))

	if queryArg != "" {
		return runQuery(ctx, conn, out, queryArg)
	}

	scanner := bufio.NewScanner(os.Stdin)
	out.Info("enter SQL, one statement per line; Ctrl-D to exit")
	for {
		fmt.Print("pgclient> ")
		if !scanner.Scan() {
			return nil
		}
		sql := strings.TrimSpace(scanner.Text())
		if sql == "" {
			continue
		}
		if err := runQuery(ctx, conn, out, sql); err != nil {
			if errors.Is(err, pgwire.ErrTransport) || errors.Is(err, pgwire.ErrFraming) || errors.Is(err, pgwire.ErrDecode) {
				return err
			}
			out.Error(err.Error())
		}
	}
}

func runQuery(ctx context.Context, conn *client.Conn, out *ui.Output, sql string) error {
	results, err := conn.Query(ctx, sql)
	if err != nil {
		return err
	}
	for _, msg := range results {
		switch {
		case msg.RowDescription != nil:
			renderRows(out, msg.RowDescription, results)
			return nil
		case msg.CommandComplete != nil:
			out.Success(msg.CommandComplete.Tag)
		case msg.EmptyQueryResponse != nil:
			out.Info("empty query")
		case msg.Error != nil:
			return fmt.Errorf("server error: %s", string(msg.Error.RawPayload))
		}
	}
	return nil
}

func renderRows(out *ui.Output, rd *pgwire.RowDescription, results []pgwire.BackendMessage) {
	table := ui.NewTable(out, rd.FieldNames()...)
	for _, msg := range results {
		if msg.DataRow == nil {
			continue
		}
		table.AddNullableRow(msg.DataRow.Fields)
	}
	table.Render()
}
