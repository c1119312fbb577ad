package main

import (
	"context"
	"strings"

	"ohmguard/internal/handlers"
	"ohmguard/internal/metrics"
	"ohmguard/internal/push"
	"ohmguard/internal/rooms"
	"ohmguard/internal/websocket"
	"ohmguard/pkg/clients/registry"
	"ohmguard/pkg/config"
	"ohmguard/pkg/kafka"
	"ohmguard/pkg/logging"
	"ohmguard/pkg/middleware"
	"ohmguard/pkg/monitoring"
	"ohmguard/pkg/server"
	"ohmguard/pkg/version"
)

const serviceName = "watchman"

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
		"build":   version.BuildDate,
	}).Info("Starting Watchman realtime service")

	healthChecker := monitoring.NewHealthChecker(serviceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)
	serviceMetrics := metrics.New(metricsCollector)

	hub := websocket.NewHub(rooms.NewRegistry(), logger, serviceMetrics)
	go hub.Run()

	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	var resolver handlers.Resolver
	registryURL := config.GetEnv("REGISTRY_URL", "")
	if registryURL != "" {
		resolver = registry.NewClient(registry.Config{
			BaseURL:      registryURL,
			ServiceToken: serviceToken,
			Logger:       logger,
		})
		healthChecker.AddCheck("registry", monitoring.HTTPServiceHealthCheck("registry", registryURL+"/health"))
	} else {
		logger.Warn("REGISTRY_URL not set, device identity resolution disabled")
	}

	var notifier handlers.Notifier
	if config.GetEnvBool("PUSH_ENABLED", true) {
		notifier = push.NewClient(config.GetEnv("EXPO_PUSH_URL", push.DefaultGatewayURL), logger)
	} else {
		logger.Warn("Push notifications disabled")
	}

	brokers := strings.Split(config.GetEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	clusterID := config.GetEnv("KAFKA_CLUSTER_ID", "local")
	clientID := config.GetEnv("KAFKA_CLIENT_ID", serviceName)
	kafkaEnabled := config.GetEnvBool("KAFKA_ENABLED", true)

	kafkaMetrics := &kafka.Metrics{
		Messages: serviceMetrics.KafkaMessages,
		Duration: serviceMetrics.KafkaDuration,
		Lag:      serviceMetrics.KafkaLag,
	}

	var producerDep handlers.Producer
	if kafkaEnabled {
		producer, err := kafka.NewProducer(brokers, clusterID, clientID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		producer.SetMetrics(kafkaMetrics)
		producerDep = producer
		healthChecker.AddCheck("kafka_producer", monitoring.KafkaProducerHealthCheck(producer.GetClient()))
	}

	h := handlers.NewHandlers(logger, hub, resolver, producerDep, notifier, serviceMetrics, handlers.Config{
		ServiceName: serviceName,
		EventsTopic: config.GetEnv("KAFKA_EVENTS_TOPIC", "radar-events"),
	})

	if kafkaEnabled {
		consumer, err := kafka.NewConsumer(
			brokers,
			config.GetEnv("KAFKA_GROUP_ID", serviceName),
			clusterID,
			clientID+"-consumer",
			logger,
			h,
		)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka consumer")
		}
		defer consumer.Close()
		consumer.SetMetrics(kafkaMetrics)

		topics := strings.Split(config.GetEnv("KAFKA_TOPICS", "radar-reports,sensor-lifecycle"), ",")
		if err := consumer.Subscribe(topics); err != nil {
			logger.WithError(err).Fatal("Failed to subscribe to topics")
		}

		consumeCtx, cancelConsume := context.WithCancel(context.Background())
		defer cancelConsume()
		go func() {
			if err := consumer.Start(consumeCtx); err != nil && consumeCtx.Err() == nil {
				logger.WithError(err).Error("Kafka consumer stopped")
			}
		}()

		healthChecker.AddCheck("kafka_consumer", monitoring.KafkaConsumerHealthCheck(consumer.GetClient()))
		logger.WithField("topics", topics).Info("Kafka fan-in started")
	} else {
		logger.Warn("Kafka disabled, running HTTP ingest only")
	}

	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"SERVICE_TOKEN": serviceToken,
	}))

	router := server.SetupServiceRouter(logger, serviceName, healthChecker, metricsCollector)

	router.GET("/ws", h.HandleWebSocket)
	router.POST("/api/events/radar", h.HandleIngest)

	admin := router.Group("/admin")
	admin.Use(middleware.ServiceAuthMiddleware(serviceToken))
	admin.POST("/broadcast", h.HandleAdminBroadcast)
	admin.GET("/stats", h.HandleStats)

	router.NoRoute(h.HandleNotFound)

	cfg := server.DefaultConfig(serviceName, "18009")
	if err := server.Start(cfg, router, logger); err != nil {
		logger.WithError(err).Fatal("Server error")
	}
}
