package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	debugpkg "runtime/debug"
	"syscall"
	"time"
)

func main() {
	// Top-level panic handler: ensure any unexpected panic is captured to
	// panic.log with a stack trace so operators can inspect it.
	defer func() {
		if r := recover(); r != nil {
			path := "panic.log"
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				ts := time.Now().UTC().Format(time.RFC3339)
				fmt.Fprintf(f, "[%s] panic: %v\nbuild_time=%s\n%s\n\n",
					ts, r, buildTime, debugpkg.Stack())
			}
		}
	}()

	configFlag := flag.String("config", "", "path to config.toml")
	secretsFlag := flag.String("secrets", "", "path to secrets.toml")
	stdoutLogFlag := flag.Bool("stdout", false, "mirror logs to stdout")
	logLevelFlag := flag.String("log-level", "", "override log level (debug/info/warn/error)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 re-reads the config and templates so operators can adjust
	// settings and restyle pages without a restart.
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(reloadChan, syscall.SIGUSR1)

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = defaultConfigPath()
	}
	cfg, secretsPath := loadConfig(cfgPath, *secretsFlag)
	if err := validateConfig(cfg); err != nil {
		fatal("config", err)
	}

	logLevelName := cfg.LogLevel
	if *logLevelFlag != "" {
		logLevelName = *logLevelFlag
	}
	level, err := parseLogLevel(logLevelName)
	if err != nil {
		fatal("log level", err)
	}
	setLogLevel(level)
	debugLogging = level <= logLevelDebug

	logDir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fatal("log directory", err, "path", logDir)
	}
	configureFileLogging(
		filepath.Join(logDir, "dashboard.log"),
		filepath.Join(logDir, "error.log"),
		*stdoutLogFlag,
	)
	defer logger.Stop()

	logger.Info("starting "+softwareName, "build_time", buildTime)
	logger.Info("effective config", "summary", cfg.Effective(), "config", cfgPath, "secrets", secretsPath)

	if err := ensureDefaultTemplates(cfg.DataDir); err != nil {
		fatal("default templates", err)
	}

	dbPath := stateDBPathFromDataDir(cfg.DataDir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		fatal("state directory", err, "path", filepath.Dir(dbPath))
	}
	db, err := openStateDB(dbPath)
	if err != nil {
		fatal("open state db", err, "path", dbPath)
	}
	defer db.Close()

	timeout := cfg.storageTimeout()
	users := newUserStore(db, timeout)
	nodes := newNodeStore(db, timeout)
	ledger := newLedgerStore(db, timeout)

	sessions := newSessionService(db, cfg.SessionSecret, cfg.sessionTTL(), timeout)
	sessions.startSessionJanitor(ctx)

	notifier := newDiscordNotifier(cfg.DiscordBotToken, cfg.DiscordNotifyChannelID)
	if err := notifier.start(ctx); err != nil {
		logger.Warn("discord notifier start failed", "error", err)
	}
	defer notifier.close()

	feed := newPoolFeed(cfg.PoolEventsAddr, ledger, notifier)
	feed.start(ctx)

	server := NewDashboardServer(cfg, users, nodes, ledger, sessions, notifier)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloadChan:
				// Listen address, pool feed, and storage settings only
				// apply at startup; everything the request handlers read
				// takes effect immediately.
				newCfg, _ := loadConfig(cfgPath, *secretsFlag)
				if err := validateConfig(newCfg); err != nil {
					logger.Error("config reload failed", "error", err)
				} else {
					server.UpdateConfig(newCfg)
					logger.Info("config reloaded")
				}
				if err := server.ReloadTemplates(); err != nil {
					logger.Error("template reload failed", "error", err)
					continue
				}
				logger.Info("templates reloaded")
			}
		}
	}()

	mux := http.NewServeMux()
	server.Routes(mux)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("http server", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	logger.Info("stopped")
}
