package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app guarda o que os subcomandos compartilham: config já carregada e logger.
type app struct {
	cfgPath string
	verbose bool
	flags   flagOverrides

	cfg    config
	logger *zap.Logger
}

// flagOverrides: flags explícitas ganham de YAML e ambiente.
type flagOverrides struct {
	listenAddr   string
	storeBackend string
	redisAddr    string
	badgerDir    string
	staticDir    string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "gateway",
		Short: "TextAIPRO gateway: Gemini proxy with API key rotation",
		Long: `Proxy HTTP para a API Gemini usado pelo editor TextAIPRO.

Recebe POST /api/gemini com {text, action}, escolhe a chave ativa do pool
(API_KEYS_POOL) a partir do estado compartilhado (Redis, badger ou memória),
rotaciona a cada REQUESTS_PER_KEY sucessos e, em 429/403, força a rotação
e tenta de novo uma única vez.

Sem subcomando, equivale a "gateway serve".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", os.Getenv("GATEWAY_CONFIG"), "YAML config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.flags.storeBackend, "store", "", "rotation store backend: redis, badger or memory")
	pf.StringVar(&a.flags.redisAddr, "redis-addr", "", "Redis address (host:port)")
	pf.StringVar(&a.flags.badgerDir, "badger-dir", "", "badger data directory")

	root.Flags().StringVar(&a.flags.listenAddr, "listen", "", "listen address")
	root.Flags().StringVar(&a.flags.staticDir, "static-dir", "", "serve the editor front-end from this directory")

	root.AddCommand(newServeCmd(a), newKeysCmd(a))
	return root
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&a.flags.listenAddr, "listen", "", "listen address")
	cmd.Flags().StringVar(&a.flags.staticDir, "static-dir", "", "serve the editor front-end from this directory")
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	if a.logger == nil {
		zcfg := zap.NewProductionConfig()
		if a.verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = logger
	}

	cfg, err := loadConfig(a.cfgPath)
	if err != nil {
		return err
	}

	if a.flags.listenAddr != "" {
		cfg.ListenAddr = a.flags.listenAddr
	}
	if a.flags.storeBackend != "" {
		cfg.StoreBackend = a.flags.storeBackend
	}
	if a.flags.redisAddr != "" {
		cfg.RedisAddr = a.flags.redisAddr
	}
	if a.flags.badgerDir != "" {
		cfg.BadgerDir = a.flags.badgerDir
	}
	if a.flags.staticDir != "" {
		cfg.StaticDir = a.flags.staticDir
	}
	a.cfg = cfg
	return nil
}
