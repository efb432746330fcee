// Command pgserver runs a standalone backend that answers the Postgres
// wire protocol with a fixed greeting responder, for exercising
// internal/backend end to end without a real database behind it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brineport/pgwire/internal/api"
	"github.com/brineport/pgwire/internal/backend"
	"github.com/brineport/pgwire/internal/config"
	"github.com/brineport/pgwire/internal/metrics"
	"github.com/brineport/pgwire/internal/ui"
	"github.com/brineport/pgwire/pkg/logger"
)

var (
	cfgFile string
	noColor bool
	out     *ui.Output
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if out != nil {
			out.Error(err.Error())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:           "pgserver",
	Short:         "A minimal Postgres wire-protocol server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Flags().String("listen", "", "override backend.listen_addr")
	_ = viper.BindPFlag("backend.listen_addr", rootCmd.Flags().Lookup("listen"))
}

func runServe(cmd *cobra.Command, args []string) error {
	out = ui.NewOutput(ui.FormatPlain, noColor, false)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr := viper.GetString("backend.listen_addr"); addr != "" {
		cfg.Backend.ListenAddr = addr
	}
	logger.SetLevel(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)

	m := metrics.New()
	listener, err := net.Listen("tcp", cfg.Backend.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Backend.ListenAddr, err)
	}
	out.Success(fmt.Sprintf("listening on %s", listener.Addr()))

	var adminErrCh chan error
	var admin *api.Server
	if cfg.API.Enabled {
		adminErrCh = make(chan error, 1)
		admin = api.NewServer(cfg.API.ListenAddr, m, func() map[string]any {
			return map[string]any{"component": "pgserver"}
		})
		admin.Start(adminErrCh)
		out.Info(fmt.Sprintf("admin api on %s", cfg.API.ListenAddr))
	}

	if cfgFile != "" {
		watcher, err := config.NewWatcher(cfgFile, func(newCfg *config.Config) {
			logger.SetLevel(newCfg.Log.Level)
			logger.SetFormat(newCfg.Log.Format)
			out.Info(fmt.Sprintf("config reloaded: log level now %s", newCfg.Log.Level))
		})
		if err != nil {
			out.Error(fmt.Sprintf("config watcher disabled: %v", err))
		} else {
			defer func() { _ = watcher.Stop() }()
		}
	}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		netConn, err := listener.Accept()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}
		m.ConnectionsTotal.WithLabelValues("backend").Inc()
		m.ConnectionsActive.Inc()
		go func() {
			defer m.ConnectionsActive.Dec()
			serveConn(ctx, netConn, cfg, m)
		}()
	}
}

func serveConn(ctx context.Context, netConn net.Conn, cfg *config.Config, m *metrics.Collector) {
	defer func() { _ = netConn.Close() }()
	conn, err := backend.Accept(ctx, netConn, backend.Config{
		ServerVersion: cfg.Backend.ServerVersion,
		AllowSSL:      false,
		Metrics:       m,
	})
	if err != nil {
		logger.Warn("handshake failed", "err", err)
		return
	}
	if err := conn.Greet(ctx); err != nil {
		logger.Debug("connection ended", "err", err)
	}
}
