package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var version = "1.0.0" // Set during build with -ldflags

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "celrix-server",
	Short: "CELRIX - In-memory cache server with vector similarity search",
	Long: `CELRIX is an in-memory cache server exposing a byte-oriented
key/value store and a vector-similarity index over a single TCP port.

Features:
- Binary CELX wire protocol with pipelined-friendly framing
- Workload-segregated worker pools: KV traffic never waits on vector scans
- Sharded store with per-entry TTL and background sweeping
- Exact brute-force cosine similarity search
- Optional snapshot + append-only-log persistence`,
	Version: version,
	RunE:    runServer,
}

// runServer starts the CELRIX server
func runServer(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := NewLogger(config.LogLevel, config.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	server, err := NewServer(config, logger)
	if err != nil {
		return err
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		// Bind failure or fatal accept error.
		return err
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		server.Stop()
		return nil
	}
}

// configCmd shows the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := LoadConfig()
		if err != nil {
			return err
		}
		fmt.Println("CELRIX Configuration:")
		fmt.Printf("Bind: %s\n", config.Bind)
		fmt.Printf("Port: %d\n", config.Port)
		fmt.Printf("KV Workers: %d (effective %d)\n", config.KVWorkers, config.EffectiveKVWorkers())
		fmt.Printf("Vector Workers: %d\n", config.VectorWorkers)
		fmt.Printf("Pin KV Workers: %t\n", config.PinKVWorkers)
		fmt.Printf("Queue Capacity: %d\n", config.QueueCapacity)
		fmt.Printf("Sweep Interval: %v\n", config.SweepInterval)
		fmt.Printf("Max Payload: %d\n", config.MaxPayload)
		fmt.Printf("Vector Dimension: %d\n", config.VectorDim)
		fmt.Printf("Semantic Threshold: %.2f\n", config.SemanticThreshold)
		fmt.Printf("Semantic Max Results: %d\n", config.SemanticMaxResults)
		fmt.Printf("Log Level: %s\n", config.LogLevel)
		fmt.Printf("Log Format: %s\n", config.LogFormat)
		fmt.Printf("Admin Enabled: %t (port %d)\n", config.AdminEnabled, config.AdminPort)
		fmt.Printf("Persistence Enabled: %t\n", config.EnablePersist)
		fmt.Printf("Data Directory: %s\n", config.DataDir)
		fmt.Printf("AOF Sync: %s\n", config.AofSync)
		fmt.Printf("Save Interval: %v\n", config.SaveInterval)
		return nil
	},
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("CELRIX Server v%s\n", version)
		fmt.Printf("Built with Go %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("bind", "b", "localhost", "Host to bind to")
	rootCmd.PersistentFlags().IntP("port", "p", 6380, "Port to listen on")
	rootCmd.PersistentFlags().Int("kv-workers", 0, "KV worker count (0 = auto-detect cores)")
	rootCmd.PersistentFlags().Int("vector-workers", 4, "Vector worker count")
	rootCmd.PersistentFlags().Bool("pin-kv-workers", true, "Pin KV workers to CPU cores")
	rootCmd.PersistentFlags().Int("queue-capacity", 10000, "Command queue capacity per pool")
	rootCmd.PersistentFlags().Duration("sweep-interval", 10*time.Second, "TTL sweep interval")
	rootCmd.PersistentFlags().Int("vector-dim", 1536, "Embedding dimension")
	rootCmd.PersistentFlags().Float64("semantic-threshold", 0.85, "Similarity threshold for vector search")
	rootCmd.PersistentFlags().Int("semantic-max-results", 5, "Default max semantic results")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	rootCmd.PersistentFlags().Bool("admin-enabled", true, "Enable admin HTTP endpoints")
	rootCmd.PersistentFlags().Int("admin-port", 9090, "Admin HTTP port")
	rootCmd.PersistentFlags().Bool("enable-persist", false, "Enable snapshot + AOF persistence")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Data directory for persistence")
	rootCmd.PersistentFlags().String("aof-sync", "everysec", "AOF sync mode (no, everysec, always)")
	rootCmd.PersistentFlags().Duration("save-interval", 300*time.Second, "Snapshot interval")

	viper.BindPFlag("bind", rootCmd.PersistentFlags().Lookup("bind"))
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("kv_workers", rootCmd.PersistentFlags().Lookup("kv-workers"))
	viper.BindPFlag("vector_workers", rootCmd.PersistentFlags().Lookup("vector-workers"))
	viper.BindPFlag("pin_kv_workers", rootCmd.PersistentFlags().Lookup("pin-kv-workers"))
	viper.BindPFlag("queue_capacity", rootCmd.PersistentFlags().Lookup("queue-capacity"))
	viper.BindPFlag("sweep_interval", rootCmd.PersistentFlags().Lookup("sweep-interval"))
	viper.BindPFlag("vector_dim", rootCmd.PersistentFlags().Lookup("vector-dim"))
	viper.BindPFlag("semantic_threshold", rootCmd.PersistentFlags().Lookup("semantic-threshold"))
	viper.BindPFlag("semantic_max_results", rootCmd.PersistentFlags().Lookup("semantic-max-results"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("admin_enabled", rootCmd.PersistentFlags().Lookup("admin-enabled"))
	viper.BindPFlag("admin_port", rootCmd.PersistentFlags().Lookup("admin-port"))
	viper.BindPFlag("enable_persist", rootCmd.PersistentFlags().Lookup("enable-persist"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("aof_sync", rootCmd.PersistentFlags().Lookup("aof-sync"))
	viper.BindPFlag("save_interval", rootCmd.PersistentFlags().Lookup("save-interval"))

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute is the main entry point for the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
