package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ShipBridge/config"
	"github.com/BearBump/ShipBridge/internal/broker/kafka"
	"github.com/BearBump/ShipBridge/internal/broker/messages"
	"github.com/BearBump/ShipBridge/internal/cache/rediscache"
	"github.com/BearBump/ShipBridge/internal/integrations/eccang"
	"github.com/BearBump/ShipBridge/internal/models"
	"github.com/BearBump/ShipBridge/internal/services/poller"
	"github.com/BearBump/ShipBridge/internal/services/shipments"
	"github.com/BearBump/ShipBridge/internal/storage/pgshipments"
)

type shipAPIFactories struct {
	newStorage  func(cfg *config.Config) (repo shipments.Repository, closeFn func(), err error)
	newCache    func(cfg *config.Config) shipments.BytesCache
	newProducer func(cfg *config.Config) shipments.Producer
	newProvider func(cfg *config.Config) shipments.Provider
	newConsumer func(cfg *config.Config, topic, group string) kafkaConsumer
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

func defaultShipAPIFactories() shipAPIFactories {
	return shipAPIFactories{
		newStorage: func(cfg *config.Config) (shipments.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := mustOpenPostgresWithRetry(connString, 60*time.Second)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newCache: func(cfg *config.Config) shipments.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		newProducer: func(cfg *config.Config) shipments.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newProvider: func(cfg *config.Config) shipments.Provider {
			client := eccang.New(cfg.ShipBridge.EccangBaseURL, cfg.ShipBridge.EccangAppToken, cfg.ShipBridge.EccangAppKey)
			if cfg.ShipBridge.ProviderRateLimitPerMinute > 0 {
				redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
				client.WithRateLimiter(rediscache.NewRateLimiter(redisAddr), int64(cfg.ShipBridge.ProviderRateLimitPerMinute))
			}
			return client
		},
		newConsumer: func(cfg *config.Config, topic, group string) kafkaConsumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, topic, group)
		},
	}
}

type shipAPIApp struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cfg         *config.Config
	f           shipAPIFactories
	swaggerPath string
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &shipAPIApp{
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		f:           defaultShipAPIFactories(),
		swaggerPath: os.Getenv("swaggerPath"),
	}
}

func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *shipAPIApp) Run() error {
	return runShipAPI(a.ctx, a.cfg, a.f, a.swaggerPath, nil)
}

// runShipAPI собирает сервис, взводчик опроса и HTTP-сервер и крутит их
// до отмены контекста. onListen нужен тестам, чтобы узнать реальный адрес.
func runShipAPI(ctx context.Context, cfg *config.Config, f shipAPIFactories, swaggerPath string, onListen func(httpAddr string)) error {
	httpAddr := cfg.ShipBridge.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ShipBridge.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "ship-api"
	}
	updatedTopic := cfg.Kafka.ShipmentUpdatedTopicName
	if updatedTopic == "" {
		updatedTopic = "shipment.updated"
	}
	requestedTopic := cfg.Kafka.ShipmentRequestedTopicName
	if requestedTopic == "" {
		requestedTopic = "shipment.requested"
	}
	cacheTTL := time.Duration(cfg.ShipBridge.CurrentStatusTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	pollInterval := time.Duration(cfg.ShipBridge.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	pollAttempts := cfg.ShipBridge.PollMaxAttempts
	if pollAttempts <= 0 {
		pollAttempts = 12
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	provider := f.newProvider(cfg)

	svc := shipments.New(repo, provider)
	if f.newCache != nil {
		if c := f.newCache(cfg); c != nil {
			svc.WithCache(c, cacheTTL)
		}
	}
	if f.newProducer != nil {
		if p := f.newProducer(cfg); p != nil {
			svc.WithProducer(p, updatedTopic)
		}
	}

	p := poller.New(svc).WithSettings(pollInterval, pollAttempts)
	defer p.Shutdown()
	svc.WithPoller(p)

	if f.newConsumer != nil {
		consumer := f.newConsumer(cfg, requestedTopic, consumerGroup)
		if consumer != nil {
			defer func() { _ = consumer.Close() }()
			go func() {
				slog.Info("kafka consumer started", "topic", requestedTopic, "group", consumerGroup)
				_ = consumer.Consume(ctx, func(_ []byte, value []byte) error {
					var m messages.ShipmentRequested
					if err := json.Unmarshal(value, &m); err != nil {
						return err
					}
					_, err := svc.Create(ctx, models.ShipmentCreateInput{
						OwnerID:        m.OwnerID,
						ReferenceNo:    m.ReferenceNo,
						ShippingMethod: m.ShippingMethod,
						CountryCode:    m.CountryCode,
						WeightKg:       m.WeightKg,
						Pieces:         m.Pieces,
						LabelType:      m.LabelType,
						OrderPayload:   m.OrderPayload,
					})
					if _, rejected := err.(*shipments.RejectedError); rejected {
						// Отклонённую заявку ретраить бессмысленно.
						slog.Warn("shipment request rejected", "reference_no", m.ReferenceNo, "error", err.Error())
						return nil
					}
					if err == pgshipments.ErrDuplicateReference {
						return nil
					}
					return err
				})
			}()
		}
	}

	return runHTTPServer(ctx, httpOpts{
		httpAddr:    httpAddr,
		swaggerPath: swaggerPath,
		onListen:    onListen,
		svc:         svc,
		poller:      p,
	})
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) (*pgshipments.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipments.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	return nil, fmt.Errorf("postgres is not ready after %s: %w", wait, lastErr)
}
