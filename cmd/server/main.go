package main

import (
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/schoolmesh/studyrooms/internal/api"
	"github.com/schoolmesh/studyrooms/internal/config"
	"github.com/schoolmesh/studyrooms/internal/core"
	"github.com/schoolmesh/studyrooms/internal/eventbus"
	"github.com/schoolmesh/studyrooms/internal/notify"
	"github.com/schoolmesh/studyrooms/internal/rooms"
)

func main() {
	app := &cli.App{
		Name:        "studyrooms-server",
		Usage:       "Live study rooms signaling server",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Usage:    "environment: either 'development' or 'production'",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen IP and port, example: ':80' for listen on 0.0.0.0:80",
				Value: "",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the config file",
				Value: "configs/studyrooms.yml",
			},
		},
		Action: startServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startServer(c *cli.Context) error {
	if err := config.Init(c.String("config")); err != nil {
		return err
	}

	address := c.String("address")
	if address == "" {
		address = viper.GetString("server.address")
	}

	db, err := sqlx.Connect("pgx", viper.GetString("db.dsn"))
	if err != nil {
		return err
	}
	if err = db.Ping(); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: viper.GetString("redis.addr"),
		DB:   viper.GetInt("redis.db"),
	})

	bus := eventbus.RedisPubSub(rdb)

	var notifier rooms.Notifier = rooms.NopNotifier{}
	if viper.GetBool("nats.enabled") {
		n, err := notify.New(viper.GetString("nats.addr"))
		if err != nil {
			return err
		}
		defer n.Close()
		notifier = n
	}

	coordinator := rooms.NewCoordinator(rooms.Options{
		Finder:         core.NewGroupStudyRepository(db),
		Publisher:      bus,
		Notifier:       notifier,
		LookupTimeout:  viper.GetDuration("rooms.lookup_timeout"),
		JoinRequestTTL: viper.GetDuration("rooms.join_request_ttl"),
	})

	serverApp := api.New(api.AppOptions{
		Env:              core.Environment(c.String("env")),
		Address:          address,
		DB:               db,
		Redis:            rdb,
		EventsSubscriber: bus,
		Coordinator:      coordinator,
	})

	return serverApp.Start()
}
