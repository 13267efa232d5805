// Package container provides dependency injection for all singleton services
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/drillgate/internal/application/services"
	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/email"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/monitoring"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/persistence/gatestate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/security"
	"github.com/AtRiskMedia/drillgate/pkg/config"
)

// StateStore is a gate store that owns a connection.
type StateStore = monitoring.Store

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application Services
	GateService *services.GateService

	// Infrastructure Dependencies
	Store       StateStore
	Monitor     *monitoring.MonitoredStore
	Purger      gate.Purger
	StoreDriver string
	GateConfig  gate.Config
	Hub         *messaging.GateHub

	// Observability
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
}

// NewContainer builds the store selected by config.StoreDriver and wires the
// gate service around it.
func NewContainer(logger *logging.ChanneledLogger, gateCfg gate.Config) (*Container, error) {
	store, err := NewStateStore(config.StoreDriver, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := newTokenIssuer(logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	opts := services.GateServiceOptions{Tokens: tokens}
	if v := security.NewBrokerCodeVerifier(config.BrokerCodeSecret); v != nil {
		opts.Verifier = v
	} else {
		logger.Startup().Warn("BROKER_CODE_SECRET is not set; broker verification accepts requests without a confirmation code")
	}

	if config.ResendAPIKey != "" {
		mailer, err := email.NewService(email.Options{
			APIKey:    config.ResendAPIKey,
			FromEmail: config.EmailFrom,
			FromName:  config.EmailFromName,
			SiteURL:   config.SiteURL,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create email service: %w", err)
		}
		opts.Mailer = mailer
	} else {
		logger.Startup().Info("RESEND_API_KEY is not set; welcome emails are disabled")
	}

	hub := messaging.NewGateHub(logger)
	opts.Hub = hub
	tracker := performance.NewTracker(performance.DefaultTrackerConfig())

	monitor := monitoring.NewMonitoredStore(store, config.StoreDriver, logger)
	c := &Container{
		GateService: services.NewGateService(monitor, gateCfg, opts, logger, tracker),
		Store:       monitor,
		Monitor:     monitor,
		StoreDriver: config.StoreDriver,
		GateConfig:  gateCfg,
		Hub:         hub,
		Logger:      logger,
		PerfTracker: tracker,
	}
	if p, ok := store.(gate.Purger); ok {
		c.Purger = p
	}
	return c, nil
}

// NewStateStore opens the store for driver.
func NewStateStore(driver string, logger *logging.ChanneledLogger) (StateStore, error) {
	switch driver {
	case config.StoreMemory:
		return stores.NewGateStatesStore(logger), nil

	case config.StoreSQLite, config.StoreTurso:
		sqlDriver := database.DriverSQLite
		var dsn string
		var err error
		if driver == config.StoreTurso {
			sqlDriver = database.DriverLibSQL
			dsn, err = database.TursoDSN(config.TursoURL, config.TursoToken)
		} else {
			dsn, err = database.SQLiteDSN(config.SQLitePath)
		}
		if err != nil {
			return nil, err
		}
		db, err := database.NewConnectionWithLogger(sqlDriver, dsn, database.DefaultPoolConfig(), logger)
		if err != nil {
			return nil, err
		}
		if err := database.NewTableCreator().CreateSchema(db.DB); err != nil {
			db.Close()
			return nil, err
		}
		return gatestate.NewSQLRepository(db, logger), nil

	case config.StoreRedis:
		client := gatestate.NewRedisClient(config.RedisAddr, config.RedisPassword, config.RedisDB)
		repo := gatestate.NewRedisRepository(client, config.GateStateTTL, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Ping(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("redis unreachable at %s: %w", config.RedisAddr, err)
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

func newTokenIssuer(logger *logging.ChanneledLogger) (*security.TokenIssuer, error) {
	secret := config.IdentityTokenSecret
	if secret == "" {
		generated, err := security.GenerateSecureKey(64)
		if err != nil {
			return nil, err
		}
		secret = generated
		logger.Startup().Warn("IDENTITY_TOKEN_SECRET is not set; using a per-process secret, identity tokens will not survive a restart")
	}
	return security.NewTokenIssuer(secret, config.IdentityTokenTTL)
}

// Close releases the service, the hub and the store.
func (c *Container) Close() error {
	c.Hub.CloseAll()
	c.GateService.Close()
	return c.Store.Close()
}
