package main

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"focusflow/backend/internal/config"
	"focusflow/backend/internal/db"
	"focusflow/backend/internal/event"
	"focusflow/backend/internal/handler"
	"focusflow/backend/internal/hub"
	"focusflow/backend/internal/repository"
	"focusflow/backend/internal/router"
	"focusflow/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "err", err)
	}

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal("open database", "err", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatal("run migrations", "err", err)
	}

	userRepo := repository.NewUserRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	taskRepo := repository.NewTaskRepository(database)

	bus := event.NewBus(256)
	defer bus.Close()
	go logEvents(bus.Subscribe())

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	sessionService := service.NewSessionService(sessionRepo, bus, service.Policy{
		DefaultWorkSeconds:       cfg.DefaultWorkSeconds,
		DefaultShortBreakSeconds: cfg.DefaultShortBreakSeconds,
		DefaultLongBreakSeconds:  cfg.DefaultLongBreakSeconds,
		DefaultTotalCycles:       cfg.DefaultTotalCycles,
		LongBreakEvery:           cfg.LongBreakEvery,
	})
	linkService := service.NewTaskLinkService(sessionRepo, taskRepo)

	realtime := hub.New(sessionService, log.Default())

	authHandler := handler.NewAuthHandler(authService)
	sessionHandler := handler.NewSessionHandler(sessionService, linkService, realtime)
	taskHandler := handler.NewTaskHandler(taskRepo)

	if cfg.SweepInterval > 0 {
		go sweepDueSessions(sessionService, realtime, cfg.SweepInterval)
	}

	engine := router.New(authService, authHandler, sessionHandler, taskHandler, realtime, cfg.CORSOrigins)
	log.Info("backend listening", "port", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatal("run server", "err", err)
	}
}

// sweepDueSessions proactively settles expired phases so idle clients
// still receive timely broadcasts. Lazy advance on access keeps the
// data correct even without it.
func sweepDueSessions(sessions *service.SessionService, realtime *hub.Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		advanced, apiErr := sessions.AdvanceDue(context.Background())
		if apiErr != nil {
			log.Error("sweep failed", "err", apiErr.Message)
			continue
		}
		for i := range advanced {
			realtime.Broadcast(&advanced[i])
		}
	}
}

func logEvents(events <-chan event.Event) {
	for evt := range events {
		log.Info("session event", "type", evt.Type, "owner", evt.OwnerID, "session", evt.SessionID, "cycle", evt.Cycle)
	}
}
