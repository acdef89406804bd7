package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REPLYBUS_"

// Load reads a YAML config file and applies environment overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes YAML and then applies overrides looked up through lookup.
// Pass nil to skip overrides.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if lookup != nil {
		if err := ApplyEnvOverrides(&cfg, lookup); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// ApplyEnvOverrides replaces fields whose REPLYBUS_* variable is set.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	stringFields := map[string]*string{
		"SERVICE_NAME":          &cfg.ServiceName,
		"INSTANCE_ID":           &cfg.InstanceID,
		"TOPIC_PREFIX":          &cfg.TopicPrefix,
		"PUBSUB_SYSTEM":         &cfg.PubSubSystem,
		"KAFKA_CONSUMER_GROUP":  &cfg.KafkaConsumerGroup,
		"RABBITMQ_URL":          &cfg.RabbitMQURL,
		"NATS_URL":              &cfg.NATSURL,
		"HTTP_SERVER_ADDRESS":   &cfg.HTTPServerAddress,
		"HTTP_PUBLISHER_URL":    &cfg.HTTPPublisherURL,
		"AWS_REGION":            &cfg.AWSRegion,
		"AWS_ACCOUNT_ID":        &cfg.AWSAccountID,
		"AWS_ACCESS_KEY_ID":     &cfg.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": &cfg.AWSSecretAccessKey,
		"AWS_ENDPOINT":          &cfg.AWSEndpoint,
	}
	for name, field := range stringFields {
		if v, ok := get(name); ok {
			*field = v
		}
	}

	if v, ok := get("KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	if v, ok := get("PENDING_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sPENDING_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.PendingTimeout = d
	}
	if v, ok := get("SEND_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sSEND_RATE_LIMIT: %w", EnvPrefix, err)
		}
		cfg.SendRateLimit = f
	}
	if v, ok := get("SEND_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSEND_BURST: %w", EnvPrefix, err)
		}
		cfg.SendBurst = n
	}
	if v, ok := get("METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sMETRICS_ENABLED: %w", EnvPrefix, err)
		}
		cfg.MetricsEnabled = b
	}
	if v, ok := get("METRICS_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMETRICS_PORT: %w", EnvPrefix, err)
		}
		cfg.MetricsPort = n
	}
	if v, ok := get("WEBUI_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sWEBUI_ENABLED: %w", EnvPrefix, err)
		}
		cfg.WebUIEnabled = b
	}
	if v, ok := get("WEBUI_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWEBUI_PORT: %w", EnvPrefix, err)
		}
		cfg.WebUIPort = n
	}
	if v, ok := get("WEBUI_CORS_ALLOWED_ORIGINS"); ok {
		cfg.WebUICORSAllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
