package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nestmate/nestmate/ai"
	"github.com/nestmate/nestmate/citystats"
	"github.com/nestmate/nestmate/indexer"
	"github.com/nestmate/nestmate/internal/profile"
	"github.com/nestmate/nestmate/internal/version"
	"github.com/nestmate/nestmate/match"
	"github.com/nestmate/nestmate/server"
	"github.com/nestmate/nestmate/store"
	"github.com/nestmate/nestmate/store/db"
	"github.com/nestmate/nestmate/store/db/postgres"
	"github.com/nestmate/nestmate/vecindex"
)

var rootCmd = &cobra.Command{
	Use:   "nestmate",
	Short: `A roommate matching service. Hybrid scoring over profile attributes and embedding similarity.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Systemd deployments configure via environment files instead.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:        viper.GetString("mode"),
			Addr:        viper.GetString("addr"),
			Port:        viper.GetInt("port"),
			UNIXSock:    viper.GetString("unix-sock"),
			Data:        viper.GetString("data"),
			Driver:      viper.GetString("driver"),
			DSN:         viper.GetString("dsn"),
			InstanceURL: viper.GetString("instance-url"),
			Version:     version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			cancel()
			slog.Error("failed to create db driver", "error", err)
			return
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			cancel()
			slog.Error("failed to migrate", "error", err)
			return
		}

		// The pgvector index lives in the same database as the user store.
		// The sqlite dev driver has no vector extension, so it gets an
		// application-layer index instead.
		var index vecindex.Index
		if pg, ok := dbDriver.(*postgres.DB); ok {
			index = vecindex.NewPGIndex(pg.GetDB())
		} else {
			slog.Warn("using in-memory vector index, vectors will not survive restarts",
				"driver", instanceProfile.Driver)
			index = vecindex.NewMemoryIndex()
		}

		var embedder ai.EmbeddingService
		if cfg, err := ai.NewEmbeddingConfig(instanceProfile); err != nil {
			slog.Warn("embedding provider not configured, indexing and text search are disabled",
				"error", err)
		} else if embedder, err = ai.NewEmbeddingService(cfg); err != nil {
			slog.Warn("failed to initialize embedding service", "error", err)
		}

		metrics := match.NewMetrics(nil)
		engine, err := match.NewEngine(storeInstance, index, embedder, metrics, match.Options{
			TopKMultiplier:   instanceProfile.TopKMultiplier,
			MaxCandidates:    instanceProfile.MaxCandidates,
			FetchConcurrency: instanceProfile.FetchConcurrency,
			HardFilterPolicy: match.HardFilterPolicy(instanceProfile.HardFilterPolicy),
		})
		if err != nil {
			cancel()
			slog.Error("failed to create matching engine", "error", err)
			return
		}

		idx := indexer.New(storeInstance, embedder, index, float64(instanceProfile.IndexerRatePerSec))
		idx.Start(ctx)

		stats := citystats.New(storeInstance)
		if err := stats.Rebuild(ctx); err != nil {
			slog.Warn("city stats rebuild failed, starting with empty counts", "error", err)
		}

		s, err := server.NewServer(ctx, instanceProfile, storeInstance, engine, metrics, idx, stats)
		if err != nil {
			cancel()
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// The default signal sent by `kill` is SIGTERM, the graceful
		// shutdown signal for systemd and kubernetes.
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start server", "error", err)
				cancel()
			}
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			idx.Stop()
			cancel()
		}()

		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "postgres")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("unix-sock", "", "path to the unix socket, overrides --addr and --port")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "postgres", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the url of your nestmate instance")

	for _, flag := range []string{"mode", "addr", "port", "unix-sock", "data", "driver", "dsn", "instance-url"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("nestmate")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("NestMate %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.UNIXSock) == 0 {
		if len(profile.Addr) == 0 {
			fmt.Printf("Server running on port %d\n", profile.Port)
		} else {
			fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		}
	} else {
		fmt.Printf("Server running on unix socket: %s\n", profile.UNIXSock)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
