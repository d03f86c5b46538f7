// Initializing common application configuration
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SMARTBLOOD"

// Store drivers
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Rabbit   RabbitConfig   `mapstructure:"rabbit"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Fanout   FanoutConfig   `mapstructure:"fanout"`
	Fraud    FraudConfig    `mapstructure:"fraud"`
	Matcher  MatcherConfig  `mapstructure:"matcher"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	AppVersion  string        `mapstructure:"app_version"`
	Host        string        `mapstructure:"host"`
	Port        string        `mapstructure:"port"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	Mode        string        `mapstructure:"mode"`
}

func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

type StoreConfig struct {
	// Driver is one of redis, postgres, memory.
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN is shared by database/sql and the LISTEN connection.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

type RabbitConfig struct {
	// Empty URL selects the in-process queue.
	URL       string `mapstructure:"url"`
	QueueName string `mapstructure:"queue_name"`
}

type KafkaConfig struct {
	// No brokers selects the logging publisher.
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type FanoutConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepBatch    int           `mapstructure:"sweep_batch"`
	Observers     int           `mapstructure:"observers"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type FraudConfig struct {
	Window    time.Duration `mapstructure:"window"`
	MaxRecent int           `mapstructure:"max_recent"`
	MaxUnits  int           `mapstructure:"max_units"`
}

type MatcherConfig struct {
	RadiusKm        float64 `mapstructure:"radius_km"`
	LeaderboardSize int     `mapstructure:"leaderboard_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig() (*viper.Viper, error) {
	viperInstance := viper.New()

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	viperInstance.SetEnvPrefix(envPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	setDefaults(viperInstance)

	if err := viperInstance.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config

	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	switch c.Store.Driver {
	case DriverRedis, DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("store.driver", DriverRedis)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "smartblood")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "smartblood")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_timeout", 4*time.Second)

	v.SetDefault("rabbit.url", "")
	v.SetDefault("rabbit.queue_name", "smartblood_fanout")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "smartblood-events")

	v.SetDefault("fanout.sweep_interval", 30*time.Second)
	v.SetDefault("fanout.sweep_batch", 100)
	v.SetDefault("fanout.observers", 1)
	v.SetDefault("fanout.max_retries", 3)
	v.SetDefault("fanout.retry_delay", time.Second)

	v.SetDefault("fraud.window", time.Hour)
	v.SetDefault("fraud.max_recent", 3)
	v.SetDefault("fraud.max_units", 5)

	v.SetDefault("matcher.radius_km", 1.5)
	v.SetDefault("matcher.leaderboard_size", 5)

	v.SetDefault("log.level", "info")
}
