package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/bootguard/internal/metrics"
	"github.com/psantana5/bootguard/internal/server"
	"github.com/psantana5/bootguard/pkg/cleanup"
	"github.com/psantana5/bootguard/pkg/shutdown"
	"github.com/psantana5/bootguard/pkg/store"
)

var (
	serveAddr          string
	serveAPIKey        string
	serveRetentionDays int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resilience API server",
	Long: `Serve the engine over HTTP: on-demand startup checks, safe-mode
status, crash report ingestion, analytics reports and Prometheus
metrics. A retention loop prunes old analytics history in the
background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "listen", ":8085", "listen address")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "bearer key guarding the API (default open; env BOOTGUARD_API_KEY)")
	serveCmd.Flags().IntVar(&serveRetentionDays, "retention-days", 90, "analytics retention in days")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	met := metrics.New()

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open analytics store: %w", err)
	}

	eng, _, err := buildEngineWithStore(st, log, met)
	if err != nil {
		st.Close()
		return err
	}

	// Memory stores have nothing to vacuum.
	var vac cleanup.Vacuumer
	if _, ok := st.(*store.MemoryStore); !ok {
		vac = st
	}

	cleanupCfg := cleanup.DefaultConfig()
	cleanupCfg.RetentionDays = serveRetentionDays
	cleaner := cleanup.NewManager(cleanupCfg, eng.Analytics(), vac, log)
	cleaner.Start()

	if serveAPIKey == "" {
		serveAPIKey = viper.GetString("api_key")
	}

	srvCfg := server.DefaultConfig()
	srvCfg.ListenAddr = serveAddr
	srvCfg.APIKey = serveAPIKey
	srv := server.New(srvCfg, eng, met, log)

	// LIFO: the HTTP server stops first, then the cleanup loops, then
	// the store closes.
	mgr := shutdown.New(30 * time.Second)
	mgr.Register(shutdown.CloseResource(st, "analytics store"))
	mgr.Register(func(ctx context.Context) error { cleaner.Stop(); return nil })
	mgr.Register(shutdown.StopHTTPServer(srv.HTTPServer(), "api"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	go mgr.Wait()

	select {
	case err := <-errCh:
		mgr.Shutdown()
		return err
	case <-mgr.Done():
	}

	mgr.Shutdown()
	return nil
}
