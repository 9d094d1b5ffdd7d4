// main.go
package main

import (
	"context"
	"log"

	"cinema-reservation/cmd"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/notify"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/internal/wire"
	"cinema-reservation/internal/worker"
	"cinema-reservation/pkg/database"
	"cinema-reservation/pkg/utils"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	if config.Database.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		logger.Info("Schema applied")
	}

	repos := repository.NewRepository(db, config.Database, logger)

	// Notification fan-out: in-process hub always, redis and rabbitmq when enabled
	hub := notify.NewHub(config.Hub.BufferSize, logger)
	hub.Start()
	defer hub.Stop()

	publishers := []notify.Publisher{hub}

	if config.Redis.Enabled {
		client, err := notify.NewRedisClient(config.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		publishers = append(publishers, notify.NewRedisPublisher(client, config.Redis.ChannelPrefix, logger))
		logger.Info("Redis publisher enabled", zap.String("addr", config.Redis.Addr))
	}

	if config.AMQP.Enabled {
		amqpPublisher, err := notify.DialAMQP(config.AMQP, logger)
		if err != nil {
			logger.Fatal("Failed to connect to rabbitmq", zap.Error(err))
		}
		defer amqpPublisher.Close()
		publishers = append(publishers, amqpPublisher)
		logger.Info("RabbitMQ publisher enabled", zap.String("exchange", config.AMQP.Exchange))
	}

	service := usecase.NewService(repos, config, clockwork.NewRealClock(), notify.NewMulti(publishers...), logger)

	app := wire.Wiring(repos, service, config, logger)

	if config.Reaper.Enabled {
		reaper := worker.NewReaper(service.Reservation, config.Reaper, logger)
		if err := reaper.Start(); err != nil {
			logger.Fatal("Failed to start reaper", zap.Error(err))
		}
		defer reaper.Stop()
	}

	logger.Info("Starting HTTP server", zap.String("port", config.App.Port))

	if err := cmd.APIServer(app.Router, config.App.Port, config.App.ShutdownTimeout, logger); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
}
