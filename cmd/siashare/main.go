package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"siashare-go/internal/app"
	"siashare-go/internal/client"
	"siashare-go/internal/config"
	"siashare-go/internal/database"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configFlag overrides the resolved config file location.
var configFlag string

func resolvePaths() (app.Paths, error) {
	paths, err := app.ResolvePaths()
	if err != nil {
		return app.Paths{}, fmt.Errorf("resolving paths: %w", err)
	}
	if configFlag != "" {
		paths.ConfigPath = configFlag
	}
	return paths, nil
}

// loadConfig reads the config file and applies environment overrides.
func loadConfig() (*config.Config, error) {
	paths, err := resolvePaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
func newApp(ctx context.Context, operation string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "siashare",
	Short:        "End-to-end encrypted file sharing backed by Sia",
	SilenceUsage: true,
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the share server",
	RunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the metadata database schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := database.DatabasePath(cfg.Database, cfg.InstanceID)
		if err != nil {
			return err
		}
		db, err := database.NewSQLiteDatabase(path)
		if err != nil {
			return err
		}
		defer db.Close()

		from, to, err := db.Migrate()
		if err != nil {
			return err
		}
		if err := db.CheckMigrations(); err != nil {
			return err
		}
		if from == to {
			fmt.Printf("Database schema already at version %d: %s\n", to, path)
		} else {
			fmt.Printf("Migrated %s from version %d to %d\n", path, from, to)
		}
		return nil
	},
}

// gc command
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim expired rooms",
}

var gcRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sweep now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "gc-run")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		fmt.Printf("Sweep #%d %s: %d room(s) reclaimed, %d deferred, %d cached upload(s) evicted\n",
			result.SweepID, result.Status, result.RoomsReclaimed, result.RoomsDeferred, result.FilesEvicted)
		return nil
	},
}

var gcHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent sweeps",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "gc-history")
		if err != nil {
			return err
		}
		defer a.Close()

		sweeps, err := a.SweepHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(sweeps) == 0 {
			fmt.Println("No sweeps recorded.")
			return nil
		}

		for _, s := range sweeps {
			duration := ""
			if !s.FinishedAt.IsZero() {
				duration = s.FinishedAt.Sub(s.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %s  %-9s  reclaimed:%d  deferred:%d  evicted:%d  %s\n",
				s.ID,
				s.StartedAt.Format("2006-01-02 15:04:05"),
				s.Status,
				s.RoomsReclaimed,
				s.RoomsDeferred,
				s.FilesEvicted,
				duration,
			)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths()
		if err != nil {
			return err
		}

		instanceID := uuid.New().String()
		if err := config.Init(paths.ConfigPath, paths.NewConfig(instanceID)); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", paths.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths()
		if err != nil {
			return err
		}
		cfg, err := config.ReadFromFile(paths.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigPath)
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Listen:      %s\n", cfg.ListenAddr)
		fmt.Printf("Room TTL:    %s\n", cfg.RoomTTL.Duration)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Cache Dir:   %s\n", cfg.Cache.Dir)
		fmt.Printf("Vault:       %s (%s)\n", cfg.Vault.Name, cfg.Vault.Type)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nConfiguration problems:\n%v\n", err)
		}
		return nil
	},
}

// newClient builds an API client from the shared client flags.
func newClient(cmd *cobra.Command, server string) (*client.Client, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	parallel, _ := cmd.Flags().GetInt("parallel")

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := client.Options{Parallel: parallel, Logger: logger}
	if cmd.Flags().Lookup("password") != nil {
		prompt, _ := cmd.Flags().GetBool("password")
		pass, err := uploadPassword(prompt)
		if err != nil {
			return nil, err
		}
		opts.UploadPassword = pass
	}
	return client.New(server, opts)
}

// uploadPassword reads SIASHARE_UPLOAD_PASSWORD, or prompts for it when asked.
func uploadPassword(prompt bool) (string, error) {
	if v := os.Getenv("SIASHARE_UPLOAD_PASSWORD"); v != "" || !prompt {
		return v, nil
	}
	fmt.Fprint(os.Stderr, "Upload password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pass), nil
}

// send command
var sendCmd = &cobra.Command{
	Use:   "send FILE...",
	Short: "Encrypt and share files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		c, err := newClient(cmd, server)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		result, err := c.Send(ctx, args)
		if err != nil {
			return err
		}
		for _, f := range result.Files {
			fmt.Fprintf(os.Stderr, "  %s (%d bytes)\n", f.Name, f.Size)
		}
		fmt.Println(result.ShareURL)
		return nil
	},
}

// receive command
var receiveCmd = &cobra.Command{
	Use:   "receive SHARE_URL",
	Short: "Download and decrypt a share",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		server, roomID, key, err := client.ParseShareURL(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(cmd, server)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		written, err := c.Receive(ctx, roomID, key, out)
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Println(p)
		}
		return nil
	},
}

func defaultServer() string {
	if v := os.Getenv("SIASHARE_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default from SIASHARE_CONFIG_PATH or the XDG config dir)")
	serveCmd.Flags().String("env-file", ".env", "Optional file of environment overrides")

	gcCmd.AddCommand(gcRunCmd)
	gcCmd.AddCommand(gcHistoryCmd)
	gcHistoryCmd.Flags().IntP("limit", "n", 20, "Maximum number of sweeps to show")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	for _, c := range []*cobra.Command{sendCmd, receiveCmd} {
		c.Flags().BoolP("verbose", "v", false, "Log transfer progress")
		c.Flags().IntP("parallel", "p", 3, "Files transferred at once")
	}
	sendCmd.Flags().StringP("server", "s", defaultServer(), "Server URL")
	sendCmd.Flags().Bool("password", false, "Prompt for the server's upload password")
	receiveCmd.Flags().StringP("out", "o", ".", "Directory to write files into")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(receiveCmd)
}
