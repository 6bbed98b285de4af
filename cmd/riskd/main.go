package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cancerrisk/config"
	"cancerrisk/features"
	rhttp "cancerrisk/http"
	"cancerrisk/logging"
	"cancerrisk/risk"
)

var (
	configPath string
	addr       string
)

var rootCmd = &cobra.Command{
	Use:   "riskd",
	Short: "Serve the breast cancer early-risk form and API",
	Long: `riskd loads a trained model and its feature schema, checks that the
schema matches the form's feature catalog, and serves the prediction form,
the explanation chart and the JSON API.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	art, err := risk.LoadArtifacts(cfg.ArtifactPaths(), features.DefaultCatalog())
	if err != nil {
		logger.Error("failed to load model artifacts", zap.Error(err))
		return err
	}
	svc, err := risk.NewService(art, risk.WithLogger(logger), risk.WithTopN(cfg.Explain.TopN))
	if err != nil {
		return err
	}
	logger.Info("model loaded",
		zap.String("model", cfg.ModelPath()),
		zap.String("schema", cfg.SchemaPath()),
		zap.String("convention", string(svc.Convention())),
		zap.Int("columns", svc.Schema().Len()),
		zap.Bool("explanations", svc.CanExplain()))

	serverCfg := rhttp.DefaultServerConfig()
	serverCfg.Addr = cfg.Server.Addr
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.IdleTimeout = cfg.Server.IdleTimeout
	serverCfg.RequestTimeout = cfg.Server.RequestTimeout
	serverCfg.AllowedOrigins = cfg.Server.AllowedOrigins

	handlers := rhttp.NewHandlers(svc, rhttp.NewMetrics(), logger)
	server := rhttp.NewServer(serverCfg, handlers, logger)
	logger.Info("serving risk form", zap.String("url", "http://"+displayAddr(server.Addr())+"/"))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
