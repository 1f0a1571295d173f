package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	ShipBridge ShipBridgeConfig `yaml:"shipbridge"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                       string `yaml:"host"`
	Port                       int    `yaml:"port"`
	ShipmentUpdatedTopicName   string `yaml:"shipment_updated_topic_name"`
	ShipmentRequestedTopicName string `yaml:"shipment_requested_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ShipBridgeConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	CurrentStatusTTLSeconds int `yaml:"current_status_ttl_seconds"`

	// Доступ к SOAP-шлюзу провайдера.
	EccangBaseURL  string `yaml:"eccang_base_url"`
	EccangAppToken string `yaml:"eccang_app_token"`
	EccangAppKey   string `yaml:"eccang_app_key"`

	ProviderRateLimitPerMinute int `yaml:"provider_rate_limit_per_minute"`

	// Фоновый опрос трек-номеров.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	PollMaxAttempts     int `yaml:"poll_max_attempts"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
