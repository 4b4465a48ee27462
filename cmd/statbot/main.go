package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/avelichko/statbot/internal/api"
	"github.com/avelichko/statbot/internal/catalog"
	"github.com/avelichko/statbot/internal/dialog"
	"github.com/avelichko/statbot/internal/lockfile"
	"github.com/avelichko/statbot/internal/messaging"
	"github.com/avelichko/statbot/internal/models"
	"github.com/avelichko/statbot/internal/store"
	"github.com/avelichko/statbot/internal/timezone"
	"github.com/avelichko/statbot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for statbot state data
	DefaultStateDir = "/var/lib/statbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "statbot.db"
	// DefaultCatalogFileName is the default message catalog filename
	DefaultCatalogFileName = "messages.json"
	// shutdownTimeout bounds the graceful HTTP shutdown
	shutdownTimeout = 10 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("statbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("statbot exited successfully")
}

func run(flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	cat, err := catalog.Load(*flags.catalogPath)
	if err != nil {
		return err
	}

	svc, err := messaging.NewBotAPIClient(messaging.WithToken(*flags.botToken))
	if err != nil {
		return err
	}

	resolver, err := timezone.NewGoogleResolver(timezone.WithAPIKey(*flags.googleKey))
	if err != nil {
		return err
	}

	limits := loadLimits()
	onboarding := dialog.NewOnboardingDialog(st, cat, limits, resolver)
	record := dialog.NewRecordDialog(st, cat, limits, dialog.DefaultRecordPickerName)
	dispatcher := messaging.NewDispatcher(st, cat, svc, onboarding, record)

	apiOpts := []api.Option{api.WithAddr(*flags.apiAddr)}
	if *flags.webhookSecret != "" {
		apiOpts = append(apiOpts, api.WithWebhookSecret(*flags.webhookSecret))
	}
	server := api.NewServer(dispatcher, st, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	slog.Info("statbot is running", "api_addr", *flags.apiAddr, "state_dir", *flags.stateDir)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Config holds environment configuration
type Config struct {
	BotToken      string
	WebhookSecret string
	DatabaseURL   string
	StateDir      string
	CatalogPath   string
	GoogleKey     string
	APIAddr       string
}

// Flags holds command line flag values
type Flags struct {
	botToken      *string
	webhookSecret *string
	stateDir      *string
	dbDSN         *string
	catalogPath   *string
	googleKey     *string
	apiAddr       *string
}

// initializeLogger sets up structured logging. Debug logging is opt-in via
// STATBOT_DEBUG.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("STATBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		BotToken:      os.Getenv("BOT_API_TOKEN"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("STATBOT_STATE_DIR"),
		CatalogPath:   os.Getenv("STATBOT_CATALOG"),
		GoogleKey:     os.Getenv("GOOGLE_TIMEZONE_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No STATBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.CatalogPath == "" {
		config.CatalogPath = DefaultCatalogFileName
	}
	if config.APIAddr == "" {
		config.APIAddr = ":8080"
	}

	slog.Debug("environment variables loaded",
		"BOT_API_TOKEN_SET", config.BotToken != "",
		"WEBHOOK_SECRET_SET", config.WebhookSecret != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"STATBOT_STATE_DIR", config.StateDir,
		"STATBOT_CATALOG", config.CatalogPath,
		"GOOGLE_TIMEZONE_API_KEY_SET", config.GoogleKey != "",
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		botToken:      flag.String("bot-token", config.BotToken, "chat platform bot token (overrides $BOT_API_TOKEN)"),
		webhookSecret: flag.String("webhook-secret", config.WebhookSecret, "webhook secret token (overrides $WEBHOOK_SECRET)"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for statbot data (overrides $STATBOT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN, postgres:// URL or SQLite path (overrides $DATABASE_URL)"),
		catalogPath:   flag.String("catalog", config.CatalogPath, "message catalog path (overrides $STATBOT_CATALOG)"),
		googleKey:     flag.String("google-api-key", config.GoogleKey, "Google Time Zone API key (overrides $GOOGLE_TIMEZONE_API_KEY)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	// Follow an overridden state directory when the DSN was defaulted from it.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated db-dsn based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"catalogPath", *flags.catalogPath,
		"apiAddr", *flags.apiAddr)

	return flags
}

// openStore selects the store backend from the DSN shape.
func openStore(dsn string) (store.Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.Contains(dsn, "host=") {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// loadLimits reads measurement bounds from the environment over the stock
// defaults.
func loadLimits() models.Limits {
	limits := models.DefaultLimits()
	limits.WeightMin = util.ParseFloatEnv("STATBOT_WEIGHT_MIN", limits.WeightMin)
	limits.WeightMax = util.ParseFloatEnv("STATBOT_WEIGHT_MAX", limits.WeightMax)
	limits.HeightMin = util.ParseFloatEnv("STATBOT_HEIGHT_MIN", limits.HeightMin)
	limits.HeightMax = util.ParseFloatEnv("STATBOT_HEIGHT_MAX", limits.HeightMax)
	return limits
}
