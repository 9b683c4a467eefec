package app

import (
	"context"

	"tabletally/config"
	"tabletally/internal/controllers"
	"tabletally/internal/database"
	"tabletally/internal/events"
	"tabletally/internal/handlers/middleware"
	"tabletally/internal/jobs"
	"tabletally/internal/logger"
	"tabletally/internal/repositories"
	"tabletally/internal/services"
	"tabletally/internal/websockets"
)

type App struct {
	Database    database.DB
	Config      config.Config
	EventBus    *events.EventBus
	Middleware  middleware.Middleware
	Websocket   *websockets.Manager
	Repos       repositories.Repository
	Services    services.Service
	Controllers controllers.Controllers
}

func New() (*App, error) {
	log := logger.New("app").Function("New")

	config, err := config.InitConfig()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	db, err := database.New(config)
	if err != nil {
		return &App{}, log.Err("failed to create database", err)
	}

	eventBus := events.New(db.Cache.Events, config)

	repos := repositories.New(db)

	services, err := services.New(db, config, eventBus)
	if err != nil {
		return &App{}, log.Err("failed to create services", err)
	}

	websocket, err := websockets.New(eventBus, config, repos.User)
	if err != nil {
		return &App{}, log.Err("failed to create websocket manager", err)
	}

	middleware := middleware.New(db, eventBus, config, repos)
	controllers := controllers.New(services, repos, eventBus, config)

	if config.SchedulerEnabled {
		if err := jobs.RegisterAllJobs(services.Scheduler, config, services, repos); err != nil {
			return &App{}, log.Err("failed to register jobs", err)
		}
		if err := services.Scheduler.Start(context.Background()); err != nil {
			return &App{}, log.Err("failed to start scheduler", err)
		}
	}

	app := &App{
		Database:    db,
		Config:      config,
		EventBus:    eventBus,
		Middleware:  middleware,
		Websocket:   websocket,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
	}

	if err := app.validate(); err != nil {
		return &App{}, log.Err("failed to validate app", err)
	}

	return app, nil
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")

	if a.Database.SQL == nil {
		return log.ErrMsg("database is nil")
	}
	if a.EventBus == nil {
		return log.ErrMsg("event bus is nil")
	}
	if a.Websocket == nil {
		return log.ErrMsg("websocket manager is nil")
	}

	nilChecks := []any{
		a.Services.Transaction,
		a.Services.Scheduler,
		a.Services.BGG,
		a.Services.Credential,
		a.Services.GameSync,
		a.Services.PlaySync,
		a.Services.Dedup,
		a.Services.Play,
		a.Services.PlaySubmit,
		a.Controllers.User,
		a.Controllers.Group,
		a.Controllers.Play,
		a.Controllers.Sync,
	}
	for _, check := range nilChecks {
		if check == nil {
			return log.ErrMsg("nil check failed")
		}
	}

	return nil
}

func (a *App) Close() (err error) {
	if a.EventBus != nil {
		if closeErr := a.EventBus.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if a.Services.Scheduler != nil {
		if closeErr := a.Services.Scheduler.Stop(context.Background()); closeErr != nil {
			err = closeErr
		}
	}

	if dbErr := a.Database.Close(); dbErr != nil {
		err = dbErr
	}

	return err
}
