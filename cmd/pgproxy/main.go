// Command pgproxy relays Postgres wire traffic between clients and a
// single upstream server, decoding and re-encoding every frame rather
// than copying bytes, so it can count message kinds and reject
// malformed frames before they reach either side.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brineport/pgwire/internal/api"
	"github.com/brineport/pgwire/internal/config"
	"github.com/brineport/pgwire/internal/metrics"
	"github.com/brineport/pgwire/internal/proxy"
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
	Use:           "pgproxy",
	Short:         "A decode/re-encode relay for the Postgres wire protocol",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runProxy,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Flags().String("listen", "", "override proxy.listen_addr")
	rootCmd.Flags().String("upstream-host", "", "override proxy.upstream_host")
	rootCmd.Flags().Int("upstream-port", 0, "override proxy.upstream_port")
	_ = viper.BindPFlag("proxy.listen_addr", rootCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("proxy.upstream_host", rootCmd.Flags().Lookup("upstream-host"))
	_ = viper.BindPFlag("proxy.upstream_port", rootCmd.Flags().Lookup("upstream-port"))
}

func runProxy(cmd *cobra.Command, args []string) error {
	out = ui.NewOutput(ui.FormatPlain, noColor, false)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr := viper.GetString("proxy.listen_addr"); addr != "" {
		cfg.Proxy.ListenAddr = addr
	}
	if host := viper.GetString("proxy.upstream_host"); host != "" {
		cfg.Proxy.UpstreamHost = host
	}
	if port := viper.GetInt("proxy.upstream_port"); port != 0 {
		cfg.Proxy.UpstreamPort = port
	}
	logger.SetLevel(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)

	m := metrics.New()
	p := proxy.New(&proxy.Config{
		ListenAddr:     cfg.Proxy.ListenAddr,
		UpstreamHost:   cfg.Proxy.UpstreamHost,
		UpstreamPort:   cfg.Proxy.UpstreamPort,
		UpstreamUser:   cfg.Proxy.UpstreamUser,
		UpstreamPass:   cfg.Proxy.UpstreamPass,
		MaxConnections: cfg.Proxy.MaxConnections,
		ConnectTimeout: cfg.Proxy.ConnectTimeout,
		IdleTimeout:    cfg.Proxy.IdleTimeout,
	}, m)

	if err := p.Start(); err != nil {
		return err
	}
	defer func() { _ = p.Stop() }()
	out.Success(fmt.Sprintf("relaying %s -> %s:%d", p.Addr(), cfg.Proxy.UpstreamHost, cfg.Proxy.UpstreamPort))

	if cfgFile != "" {
		watcher, err := config.NewWatcher(cfgFile, func(newCfg *config.Config) {
			logger.SetLevel(newCfg.Log.Level)
			logger.SetFormat(newCfg.Log.Format)
			p.UpdateUpstream(newCfg.Proxy.UpstreamHost, newCfg.Proxy.UpstreamPort)
			out.Info(fmt.Sprintf("config reloaded: upstream now %s:%d", newCfg.Proxy.UpstreamHost, newCfg.Proxy.UpstreamPort))
		})
		if err != nil {
			out.Error(fmt.Sprintf("config watcher disabled: %v", err))
		} else {
			defer func() { _ = watcher.Stop() }()
		}
	}

	if cfg.API.Enabled {
		adminErrCh := make(chan error, 1)
		admin := api.NewServer(cfg.API.ListenAddr, m, func() map[string]any {
			return map[string]any{
				"component":          "pgproxy",
				"connections_active": p.ConnectionCount(),
			}
		})
		admin.Start(adminErrCh)
		out.Info(fmt.Sprintf("admin api on %s", cfg.API.ListenAddr))
	}

	<-cmd.Context().Done()
	return nil
}
