package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/isqad/melody"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/schoolmesh/studyrooms/internal/core"
	"github.com/schoolmesh/studyrooms/internal/eventbus"
	"github.com/schoolmesh/studyrooms/internal/rooms"
)

// AppOptions is options of the application
type AppOptions struct {
	Env     core.Environment
	Address string

	DB               *sqlx.DB
	Redis            *redis.Client
	EventsSubscriber eventbus.Subscriber
	Coordinator      *rooms.Coordinator

	websocket      *melody.Melody
	authMiddleware AuthHandler
}

// App is the websocket signaling server application
type App struct {
	AppOptions
}

func New(options AppOptions) *App {
	options.websocket = melody.New()
	options.websocket.Config.MaxMessageSize = 200 * 1024 // 200K

	tokenAuth := NewTokenAuth(
		viper.GetString("auth.service_addr"),
		viper.GetString("auth.session_secret"),
	)
	options.authMiddleware = tokenAuth.Middleware()

	app := &App{
		options,
	}
	return app
}

func (app *App) Start() error {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{}, 1)

	app.initLogger()
	router := app.initRouter()

	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	server := &http.Server{
		Addr:              app.Address,
		Handler:           router,
		ReadHeaderTimeout: 1 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Warn().Msg("received signal to terminate the server")
		log.Info().Msg("all services are stopped")
		close(done)
	})

	// Shutdown the HTTP server
	go func() {
		<-quit
		log.Warn().Msg("the server is going shutting down")

		// Wait 20 seconds for close http connections
		waitIdleConnCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(waitIdleConnCtx); err != nil {
			log.Fatal().Err(err).Msg("can't gracefully shutdown the server")
		}
	}()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server has been closed immediatelly")
	}

	<-done
	log.Info().Msg("server stopped")

	return nil
}

func (app *App) initLogger() {
	level := zerolog.DebugLevel
	if app.Env.IsProduction() {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Structured JSON in production, human-readable console otherwise.
	if app.Env.IsDevelopment() {
		log.Logger = log.Output(zerolog.NewConsoleWriter())
	}
}

// initRouter is function for construct http router
func (app *App) initRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	app.websocket.HandleConnect(ConnectHandler(app.Coordinator))
	app.websocket.HandleDisconnect(DisconnectHandler(app.Coordinator))
	app.websocket.HandleMessage(HandleMessage(app.Coordinator))
	app.websocket.HandleError(func(s *melody.Session, err error) {
		log.Error().Err(err).Str("service", "ws").Msg("error in websocket session")
	})

	r.Get("/healthz", app.healthzHandler())
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(app.authMiddleware)
		r.Get("/ws", WebsocketsHandler(app.EventsSubscriber, app.websocket))
		r.Get("/api/v1/rooms", RoomsHandler(app.Coordinator))
	})

	return r
}

func (app *App) healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if app.DB != nil {
			if err := app.DB.PingContext(ctx); err != nil {
				log.Error().Err(err).Str("service", "api").Msg("db ping")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		if app.Redis != nil {
			if err := app.Redis.Ping(ctx).Err(); err != nil {
				log.Error().Err(err).Str("service", "api").Msg("redis ping")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}
