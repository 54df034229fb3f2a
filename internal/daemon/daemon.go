package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/sessionbot/internal/config"
	"github.com/harun/sessionbot/internal/logger"
	"github.com/harun/sessionbot/internal/metrics"
	"github.com/harun/sessionbot/internal/observability"
	"github.com/harun/sessionbot/internal/telegram"
	"github.com/harun/sessionbot/internal/tracing"
	"github.com/harun/sessionbot/pkg/commandqueue"
	"github.com/harun/sessionbot/pkg/conversation"
	"github.com/harun/sessionbot/pkg/provider"
	"github.com/harun/sessionbot/pkg/secret"
	"github.com/harun/sessionbot/pkg/store"
)

const (
	serviceName     = "sessionbot"
	dedupTTL        = 10 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// Daemon represents the sessionbot service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	queue   *commandqueue.CommandQueue
	vault   *secret.Vault
	store   *store.Log
	gateway *provider.Gateway
	machine *conversation.Machine
	janitor *conversation.Janitor

	// Telegram
	telegramBot *telegram.Bot
	handler     *telegram.Handler
	ingress     *Ingress

	// Metrics endpoint
	metrics       *metrics.Metrics
	metricsServer *http.Server
	metricsAddr   string

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status describes a running daemon
type Status struct {
	Running             bool
	Uptime              time.Duration
	StartTime           time.Time
	ActiveConversations int
}

var newTelegramBot = func(cfg *config.TelegramConfig, log *logger.Logger) (*telegram.Bot, error) {
	return telegram.New(cfg, log)
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()
	tracing.InitOpenTelemetry(serviceName)

	d := &Daemon{
		config:         cfg,
		logger:         log,
		ctx:            ctx,
		cancel:         cancel,
		tracingEnabled: true,
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// abort undoes a partial New
func (d *Daemon) abort() {
	d.cancel()
	if d.machine != nil {
		_ = d.machine.Close()
	}
	if d.queue != nil {
		_ = d.queue.Close()
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

// initializeCoreModules sets up persistence, the provider gateway and the
// conversation machine
func (d *Daemon) initializeCoreModules() error {
	d.queue = commandqueue.New(commandqueue.Options{DedupTTL: dedupTTL})
	d.logger.Info().Msg("Command queue initialized")

	if err := observability.InitAuditLogger(d.config.Logging.AuditFile); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	} else {
		d.logger.Info().Str("path", d.config.Logging.AuditFile).Msg("Audit logger initialized")
	}

	sessions, err := store.Open(d.config.Storage.SessionsLog, d.config.Storage.ArtifactDir)
	if err != nil {
		return fmt.Errorf("failed to open sessions log: %w", err)
	}
	d.store = sessions
	d.logger.Info().Str("path", sessions.Path()).Msg("Sessions log opened")

	d.gateway = provider.NewGateway(provider.NewHTTPFactory(provider.HTTPConfig{
		BaseURL:       d.config.Provider.BaseURL,
		LoginPath:     d.config.Provider.LoginPath,
		TwoFactorPath: d.config.Provider.TwoFactorPath,
		TokenField:    d.config.Provider.TokenField,
		TokenCookie:   d.config.Provider.TokenCookie,
		UserAgent:     d.config.Provider.UserAgent,
		Timeout:       d.config.ProviderTimeout(),
	}))
	d.logger.Info().Str("base_url", d.config.Provider.BaseURL).Msg("Provider gateway initialized")

	return nil
}

// initializeServices sets up Telegram, the machine on top of it and the janitor
func (d *Daemon) initializeServices() error {
	bot, err := newTelegramBot(&d.config.Telegram, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	d.telegramBot = bot

	d.vault = secret.NewVault()
	machine, err := conversation.New(conversation.Config{
		EntryCommand:  d.config.Flow.EntryCommand,
		CancelCommand: d.config.Flow.CancelCommand,
		Transport:     bot,
		Gateway:       d.gateway,
		Store:         d.store,
		Vault:         d.vault,
		Queue:         d.queue,
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation machine: %w", err)
	}
	d.machine = machine
	d.logger.Info().
		Str("entry", d.config.Flow.EntryCommand).
		Str("cancel", d.config.Flow.CancelCommand).
		Msg("Conversation machine initialized")

	if idle := d.config.IdleTimeout(); idle > 0 {
		janitor, err := conversation.NewJanitor(machine, d.config.Flow.JanitorSchedule, idle)
		if err != nil {
			return err
		}
		d.janitor = janitor
	}

	d.metrics = metrics.NewMetrics(func() float64 { return d.Status().Uptime.Seconds() })

	d.ingress = NewIngress(machine, bot, d.config.Telegram.Allowlist, d.metrics, d.logger.GetZerolog())
	d.handler = telegram.NewHandler(bot, machine)
	d.handler.SetOnEvent(d.ingress.OnEvent)
	bot.SetHandler(d.handler)

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting sessionbot daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.config.Metrics.Enabled {
		if err := d.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info().Str("addr", d.metricsAddr).Msg("Metrics server started")
	}

	if err := d.telegramBot.SetCommands(telegram.MenuCommands(d.config.Flow.EntryCommand, d.config.Flow.CancelCommand)); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish bot commands")
	}

	if err := d.telegramBot.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start telegram bot: %w", err)
	}
	logger.Info().Msg("Telegram bot started")

	if d.janitor != nil {
		if err := d.janitor.Start(); err != nil {
			return fmt.Errorf("failed to start janitor: %w", err)
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().Msg("Daemon started successfully")

	return nil
}

func (d *Daemon) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := net.Listen("tcp", d.config.Metrics.Listen)
	if err != nil {
		return err
	}

	d.metricsAddr = ln.Addr().String()
	d.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return nil
}

// Stop stops the daemon gracefully. Conversations still in progress are
// dropped without a message; their secrets are released.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping sessionbot daemon")

	// No new updates
	if err := d.telegramBot.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop telegram bot")
	}

	if d.janitor != nil {
		if err := d.janitor.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop janitor")
		}
	}

	// Let running steps finish, then reject the rest
	d.eventLoop.HandleShutdown()
	if err := d.queue.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close command queue")
	}
	d.ingress.Wait()

	if err := d.machine.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close conversation machine")
	}
	logger.Info().Msg("Conversation machine stopped")

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
		cancel()
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	if d.machine != nil {
		status.ActiveConversations = d.machine.ActiveCount()
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetMachine returns the conversation machine
func (d *Daemon) GetMachine() *conversation.Machine {
	return d.machine
}

// GetTelegramBot returns the Telegram bot
func (d *Daemon) GetTelegramBot() *telegram.Bot {
	return d.telegramBot
}

// MetricsAddr returns the address the metrics server listens on, empty when disabled
func (d *Daemon) MetricsAddr() string {
	return d.metricsAddr
}
