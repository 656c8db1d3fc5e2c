// Package gate parses gate command flags and starts the transport runtime.
package gate

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tessera-games/riftgate/internal/access"
	accesssqlite "github.com/tessera-games/riftgate/internal/access/sqlite"
	"github.com/tessera-games/riftgate/internal/actor"
	"github.com/tessera-games/riftgate/internal/auth"
	"github.com/tessera-games/riftgate/internal/dispatch"
	"github.com/tessera-games/riftgate/internal/netevent"
	"github.com/tessera-games/riftgate/internal/platform/config"
	"github.com/tessera-games/riftgate/internal/platform/otel"
	"github.com/tessera-games/riftgate/internal/ratelimit"
	"github.com/tessera-games/riftgate/internal/router"
	"github.com/tessera-games/riftgate/internal/telemetry"
	"github.com/tessera-games/riftgate/internal/transport"
	"github.com/tessera-games/riftgate/internal/transport/ws"
)

// Config holds gate command configuration.
type Config struct {
	HTTPAddr          string        `env:"RIFTGATE_GATE_HTTP_ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"RIFTGATE_GATE_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"RIFTGATE_GATE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	PrincipalDBPath   string        `env:"RIFTGATE_PRINCIPAL_DB_PATH" envDefault:"riftgate.db"`
	RateLimitMaxKeys  int           `env:"RIFTGATE_RATE_LIMIT_MAX_KEYS" envDefault:"10000"`
	OwnerID           string        `env:"RIFTGATE_OWNER_ID" envDefault:"gate"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "The gate listen address")
	fs.StringVar(&cfg.PrincipalDBPath, "db", cfg.PrincipalDBPath, "Path to the principal database")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Runtime is the assembled gate process: transport, dispatch pipeline,
// net-event processor, and command router over one shared actor registry.
type Runtime struct {
	Actors    *actor.Registry
	Service   *dispatch.Service
	Processor *netevent.Processor
	Router    *router.Router
	Gate      *ws.Server
}

// lateNotifier breaks the construction cycle between the dispatch service
// and the transport that delivers its notices.
type lateNotifier struct {
	gate *ws.Server
}

func (n *lateNotifier) Notify(ctx context.Context, connectionID, message string) error {
	if n.gate == nil {
		return fmt.Errorf("gate transport not ready")
	}
	return n.gate.Notify(ctx, connectionID, message)
}

// Build wires the runtime without starting it, so tests and alternate
// entrypoints can register commands before serving.
func Build(cfg Config, bus transport.Bus, logger *log.Logger) (*Runtime, func() error, error) {
	if logger == nil {
		logger = log.Default()
	}

	store, err := accesssqlite.Open(cfg.PrincipalDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open principal store: %w", err)
	}
	cleanup := store.Close

	var verifier *auth.VerifierConfig
	if os.Getenv("RIFTGATE_SESSION_TOKEN_PUBLIC_KEY") != "" {
		vc, err := auth.LoadVerifierConfigFromEnv(time.Now)
		if err != nil {
			_ = cleanup()
			return nil, nil, fmt.Errorf("load session token config: %w", err)
		}
		verifier = &vc
	} else {
		logger.Printf("session token verification disabled; only public commands are reachable")
	}

	actors := actor.NewRegistry()
	emitter := telemetry.NewEmitter(telemetry.LogStore{})
	notifier := &lateNotifier{}

	service := dispatch.NewService(dispatch.Deps{
		Registry:   dispatch.NewRegistry(logger),
		Access:     access.NewService(store),
		Limiter:    ratelimit.New(cfg.RateLimitMaxKeys),
		Notifier:   notifier,
		Violations: emitter,
		Logger:     logger,
	})

	var forwarder router.Forwarder
	if bus != nil {
		forwarder = router.NewBusForwarder(bus)
	}
	rt := router.New(service, forwarder, logger)

	gate := ws.NewServer(ws.Config{
		HTTPAddr:          cfg.HTTPAddr,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}, actors, rt, verifier, logger)
	notifier.gate = gate

	processor := netevent.NewProcessor(netevent.Deps{
		Directory: actors,
		Notifier:  gate,
		Observer:  emitter,
		Logger:    logger,
	})

	if bus != nil {
		router.NewReceiver(cfg.OwnerID, service, actors, logger).Listen(bus)
	}

	return &Runtime{
		Actors:    actors,
		Service:   service,
		Processor: processor,
		Router:    rt,
		Gate:      gate,
	}, cleanup, nil
}

// Run builds the runtime and serves until the context is cancelled.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "riftgate-gate")
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	rt, cleanup, err := Build(cfg, transport.NewMemoryBus(), log.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			log.Printf("close principal store: %v", err)
		}
	}()

	rt.Processor.Bind(rt.Gate)
	log.Printf("gate listening on %s", cfg.HTTPAddr)
	return rt.Gate.ListenAndServe(ctx)
}
