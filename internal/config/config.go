package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// GatewayMode selects the payment gateway implementation to wire in.
type GatewayMode string

const (
	GatewayLive    GatewayMode = "live"
	GatewaySandbox GatewayMode = "sandbox"
)

// Config holds all configuration for the catering platform
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Redis         RedisConfig         `yaml:"redis"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	SMTP          SMTPConfig          `yaml:"smtp"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Payments      PaymentsConfig      `yaml:"payments"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GatewayConfig holds payment gateway credentials and behavior.
// The config value is immutable after load; services receive it at construction.
type GatewayConfig struct {
	Mode           GatewayMode `yaml:"mode"`
	BaseURL        string      `yaml:"base_url"`
	MerchantID     string      `yaml:"merchant_id"`
	Secret         string      `yaml:"secret"`
	Currency       string      `yaml:"currency"`
	ReturnURL      string      `yaml:"return_url"`
	Language       string      `yaml:"language"`
	Template       string      `yaml:"template"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
}

// SMTPConfig holds mail transport configuration
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// NotificationsConfig holds recipient lists and retry behavior
type NotificationsConfig struct {
	Coordinators         []string `yaml:"coordinators"`
	Observers            []string `yaml:"observers"`
	ExtraRecipients      []string `yaml:"extra_recipients"`
	MaxRetries           int      `yaml:"max_retries"`
	SweepIntervalSeconds int      `yaml:"sweep_interval_seconds"`
}

// PaymentsConfig holds reconciliation behavior
type PaymentsConfig struct {
	ConsumeAttemptOnReject bool `yaml:"consume_attempt_on_reject"`
	SweepIntervalSeconds   int  `yaml:"sweep_interval_seconds"`
}

// Load reads configuration from a YAML file
func Load(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	config := defaults()
	scanner := bufio.NewScanner(file)

	var currentSection string

	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Section headers sit at the left margin. An indented bare key
		// such as "extra_recipients:" is an empty value, not a section.
		indented := strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")
		if !indented && strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			currentSection = strings.TrimSuffix(line, ":")
			continue
		}

		// Parse key-value pairs
		if strings.Contains(line, ":") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if err := config.setValue(currentSection, key, value); err != nil {
				return nil, fmt.Errorf("failed to set config value %s.%s: %w", currentSection, key, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Mode:           GatewaySandbox,
			Currency:       "USD",
			Language:       "en",
			TimeoutSeconds: 15,
		},
		Notifications: NotificationsConfig{
			MaxRetries:           12,
			SweepIntervalSeconds: 60,
		},
		Payments: PaymentsConfig{
			ConsumeAttemptOnReject: true,
			SweepIntervalSeconds:   120,
		},
	}
}

func (c *Config) validate() error {
	switch c.Gateway.Mode {
	case GatewayLive, GatewaySandbox:
	default:
		return fmt.Errorf("gateway.mode must be one of: live, sandbox")
	}
	if c.Gateway.Mode == GatewayLive && c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required in live mode")
	}
	return nil
}

// setValue sets a configuration value based on section and key
func (c *Config) setValue(section, key, value string) error {
	switch section {
	case "database":
		return c.setDatabaseValue(key, value)
	case "rabbitmq":
		return c.setRabbitMQValue(key, value)
	case "redis":
		return c.setRedisValue(key, value)
	case "gateway":
		return c.setGatewayValue(key, value)
	case "smtp":
		return c.setSMTPValue(key, value)
	case "notifications":
		return c.setNotificationsValue(key, value)
	case "payments":
		return c.setPaymentsValue(key, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func (c *Config) setDatabaseValue(key, value string) error {
	switch key {
	case "host":
		c.Database.Host = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid port value: %w", err)
		}
		c.Database.Port = port
	case "user":
		c.Database.User = value
	case "password":
		c.Database.Password = value
	case "database":
		c.Database.Database = value
	default:
		return fmt.Errorf("unknown database key: %s", key)
	}
	return nil
}

func (c *Config) setRabbitMQValue(key, value string) error {
	switch key {
	case "host":
		c.RabbitMQ.Host = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid port value: %w", err)
		}
		c.RabbitMQ.Port = port
	case "user":
		c.RabbitMQ.User = value
	case "password":
		c.RabbitMQ.Password = value
	default:
		return fmt.Errorf("unknown rabbitmq key: %s", key)
	}
	return nil
}

func (c *Config) setRedisValue(key, value string) error {
	switch key {
	case "host":
		c.Redis.Host = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid port value: %w", err)
		}
		c.Redis.Port = port
	default:
		return fmt.Errorf("unknown redis key: %s", key)
	}
	return nil
}

func (c *Config) setGatewayValue(key, value string) error {
	switch key {
	case "mode":
		c.Gateway.Mode = GatewayMode(value)
	case "base_url":
		c.Gateway.BaseURL = value
	case "merchant_id":
		c.Gateway.MerchantID = value
	case "secret":
		c.Gateway.Secret = value
	case "currency":
		c.Gateway.Currency = value
	case "return_url":
		c.Gateway.ReturnURL = value
	case "language":
		c.Gateway.Language = value
	case "template":
		c.Gateway.Template = value
	case "timeout_seconds":
		timeout, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		c.Gateway.TimeoutSeconds = timeout
	default:
		return fmt.Errorf("unknown gateway key: %s", key)
	}
	return nil
}

func (c *Config) setSMTPValue(key, value string) error {
	switch key {
	case "host":
		c.SMTP.Host = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid port value: %w", err)
		}
		c.SMTP.Port = port
	case "from":
		c.SMTP.From = value
	case "user":
		c.SMTP.User = value
	case "password":
		c.SMTP.Password = value
	default:
		return fmt.Errorf("unknown smtp key: %s", key)
	}
	return nil
}

func (c *Config) setNotificationsValue(key, value string) error {
	switch key {
	case "coordinators":
		c.Notifications.Coordinators = splitList(value)
	case "observers":
		c.Notifications.Observers = splitList(value)
	case "extra_recipients":
		c.Notifications.ExtraRecipients = splitList(value)
	case "max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max_retries value: %w", err)
		}
		c.Notifications.MaxRetries = n
	case "sweep_interval_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid sweep_interval_seconds value: %w", err)
		}
		c.Notifications.SweepIntervalSeconds = n
	default:
		return fmt.Errorf("unknown notifications key: %s", key)
	}
	return nil
}

func (c *Config) setPaymentsValue(key, value string) error {
	switch key {
	case "consume_attempt_on_reject":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid consume_attempt_on_reject value: %w", err)
		}
		c.Payments.ConsumeAttemptOnReject = b
	case "sweep_interval_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid sweep_interval_seconds value: %w", err)
		}
		c.Payments.SweepIntervalSeconds = n
	default:
		return fmt.Errorf("unknown payments key: %s", key)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

// RedisAddr returns the host:port address for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
