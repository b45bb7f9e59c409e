package api

import (
	"context"
	"fmt"

	authUsecase "mailtrack-backend/internal/auth/usecase"
	trackingDelivery "mailtrack-backend/internal/tracking/delivery"
	"mailtrack-backend/internal/tracking/domain"
	trackingRepo "mailtrack-backend/internal/tracking/repository"
	"mailtrack-backend/internal/tracking/scheduler"
	trackingUsecase "mailtrack-backend/internal/tracking/usecase"
	"mailtrack-backend/pkg/config"
	"mailtrack-backend/pkg/crypto"
	"mailtrack-backend/pkg/database"
	"mailtrack-backend/pkg/events"
	"mailtrack-backend/pkg/gmail"
	"mailtrack-backend/pkg/logger"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module composes the email tracking service.
func Module() fx.Option {
	return fx.Module("api",
		fx.Provide(
			config.Load,
			provideLogger,
			provideDatabase,
			provideSealer,
			providePublisher,
			provideGmailService,
			provideAuthUsecase,
			trackingRepo.NewTrackedEmailRepository,
			trackingRepo.NewApplicationRepository,
			provideConnectionRepository,
			provideReconciler,
			provideTrackingUsecase,
			provideScheduler,
			provideTrackingHandler,
			NewHandler,
		),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.LogLevel, cfg.LogFormat)
}

func provideDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.NewConnection(cfg)
	if err != nil {
		return nil, err
	}

	models := []interface{}{&domain.Connection{}, &domain.TrackedEmail{}}
	// Applications and jobs belong to the application service; a standalone
	// SQLite database has to carry them itself.
	if cfg.DatabaseDriver == "sqlite" {
		models = append(models, &domain.Job{}, &domain.Application{})
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database ready", zap.String("driver", cfg.DatabaseDriver))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

func provideSealer(cfg *config.Config, log *zap.Logger) (*crypto.Sealer, error) {
	if len(cfg.TokenEncryptionKey) == 0 {
		log.Warn("TOKEN_ENCRYPTION_KEY not set, OAuth tokens are stored unencrypted")
		return nil, nil
	}
	return crypto.NewSealer(cfg.TokenEncryptionKey)
}

func providePublisher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (events.Publisher, error) {
	if cfg.RedisURL == "" {
		log.Info("REDIS_URL not set, tracking events disabled")
		return events.NopPublisher{}, nil
	}
	rdb, err := events.NewRedisClient(context.Background(), cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return rdb.Close() },
	})
	return events.NewRedisPublisher(rdb), nil
}

func provideGmailService(cfg *config.Config, log *zap.Logger) *gmail.Service {
	return gmail.NewService(gmail.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		LookbackDays: cfg.Sync.LookbackDays,
		MaxResults:   cfg.Sync.MaxResults,
		Keywords:     cfg.Sync.Keywords,
	}, log)
}

func provideAuthUsecase(cfg *config.Config) authUsecase.AuthUsecase {
	return authUsecase.NewAuthUsecase(cfg.JWTSecret)
}

func provideConnectionRepository(db *gorm.DB, sealer *crypto.Sealer) trackingRepo.ConnectionRepository {
	return trackingRepo.NewConnectionRepository(db, sealer)
}

func provideReconciler(apps trackingRepo.ApplicationRepository, publisher events.Publisher, log *zap.Logger) *trackingUsecase.Reconciler {
	return trackingUsecase.NewReconciler(apps, publisher, log)
}

func provideTrackingUsecase(
	connections trackingRepo.ConnectionRepository,
	emails trackingRepo.TrackedEmailRepository,
	provider *gmail.Service,
	auth authUsecase.AuthUsecase,
	reconciler *trackingUsecase.Reconciler,
	publisher events.Publisher,
	log *zap.Logger,
) trackingUsecase.TrackingUsecase {
	return trackingUsecase.NewTrackingUsecase(connections, emails, provider, auth, reconciler, publisher, log)
}

func provideScheduler(cfg *config.Config, connections trackingRepo.ConnectionRepository, uc trackingUsecase.TrackingUsecase, log *zap.Logger) (*scheduler.SyncScheduler, error) {
	return scheduler.NewSyncScheduler(connections, uc, cfg.Sync.Schedule, cfg.Sync.RunOnStartup, log)
}

func provideTrackingHandler(cfg *config.Config, uc trackingUsecase.TrackingUsecase, log *zap.Logger) *trackingDelivery.TrackingHandler {
	return trackingDelivery.NewTrackingHandler(uc, cfg.FrontendURL, log)
}

func registerLifecycle(lc fx.Lifecycle, h *Handler, sched *scheduler.SyncScheduler, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := h.Start(); err != nil {
				return err
			}
			sched.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := sched.Stop(ctx); err != nil {
				log.Warn("scheduler did not stop in time", zap.Error(err))
			}
			err := h.Shutdown(ctx)
			log.Info("email tracking service stopped")
			_ = log.Sync()
			return err
		},
	})
}
