package config

import (
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config holds everything the service reads from app.env or the environment.
type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogMode  string `mapstructure:"LOG_MODE"`

	MySQLUser     string `mapstructure:"MYSQL_USER"`
	MySQLPassword string `mapstructure:"MYSQL_PASSWORD"`
	MySQLHost     string `mapstructure:"MYSQL_HOST"`
	MySQLPort     string `mapstructure:"MYSQL_PORT"`
	MySQLDatabase string `mapstructure:"MYSQL_DATABASE"`

	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     string `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	PuzzleDBPath       string        `mapstructure:"PUZZLE_DB_PATH"`
	PuzzleStoreTimeout time.Duration `mapstructure:"PUZZLE_STORE_TIMEOUT"`
	PuzzleCacheTTL     time.Duration `mapstructure:"PUZZLE_CACHE_TTL"`

	RetryProbability   float64 `mapstructure:"RETRY_PROBABILITY"`
	PriorityWeight1    int     `mapstructure:"PRIORITY_WEIGHT_1"`
	PriorityWeight2    int     `mapstructure:"PRIORITY_WEIGHT_2"`
	PriorityWeight3    int     `mapstructure:"PRIORITY_WEIGHT_3"`
	RatingBandSteps    []int   `mapstructure:"RATING_BAND_STEPS"`
	DefaultCycleTarget int     `mapstructure:"DEFAULT_CYCLE_TARGET"`

	RateLimitMax int `mapstructure:"RATE_LIMIT_MAX"`

	RabbitMQURI      string `mapstructure:"RABBITMQ_URI"`
	RabbitMQExchange string `mapstructure:"RABBITMQ_EXCHANGE"`

	ThemeCatalogPath string `mapstructure:"THEME_CATALOG_PATH"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":3001")
	v.SetDefault("LOG_MODE", "development")

	v.SetDefault("MYSQL_USER", "root")
	v.SetDefault("MYSQL_PASSWORD", "")
	v.SetDefault("MYSQL_HOST", "localhost")
	v.SetDefault("MYSQL_PORT", "3306")
	v.SetDefault("MYSQL_DATABASE", "puzzletrainer")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")

	v.SetDefault("PUZZLE_DB_PATH", "lichess_puzzles.sqlite3")
	v.SetDefault("PUZZLE_STORE_TIMEOUT", "2s")
	v.SetDefault("PUZZLE_CACHE_TTL", "1h")

	v.SetDefault("RETRY_PROBABILITY", 0.1)
	v.SetDefault("PRIORITY_WEIGHT_1", 5)
	v.SetDefault("PRIORITY_WEIGHT_2", 3)
	v.SetDefault("PRIORITY_WEIGHT_3", 2)
	v.SetDefault("RATING_BAND_STEPS", "50,100,200")
	v.SetDefault("DEFAULT_CYCLE_TARGET", 105)

	v.SetDefault("RATE_LIMIT_MAX", 100)

	v.SetDefault("RABBITMQ_URI", "")
	v.SetDefault("RABBITMQ_EXCHANGE", "")

	v.SetDefault("THEME_CATALOG_PATH", "")
}

// LoadConfig reads app.env from path (if present) and overlays the environment.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
	}
	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

// Validate rejects policy values that would make selection meaningless.
func (c Config) Validate() error {
	if c.RetryProbability < 0 || c.RetryProbability > 1 {
		return fmt.Errorf("RETRY_PROBABILITY must be within [0,1], got %v", c.RetryProbability)
	}
	weights := []int{c.PriorityWeight1, c.PriorityWeight2, c.PriorityWeight3}
	total := 0
	for i, w := range weights {
		if w < 0 {
			return fmt.Errorf("PRIORITY_WEIGHT_%d must not be negative", i+1)
		}
		total += w
	}
	if total == 0 {
		return fmt.Errorf("at least one PRIORITY_WEIGHT must be positive")
	}
	if len(c.RatingBandSteps) == 0 {
		return fmt.Errorf("RATING_BAND_STEPS must not be empty")
	}
	for _, s := range c.RatingBandSteps {
		if s <= 0 {
			return fmt.Errorf("RATING_BAND_STEPS must be positive, got %d", s)
		}
	}
	if c.PuzzleStoreTimeout <= 0 {
		return fmt.Errorf("PUZZLE_STORE_TIMEOUT must be positive")
	}
	if c.DefaultCycleTarget <= 0 {
		return fmt.Errorf("DEFAULT_CYCLE_TARGET must be positive")
	}
	return nil
}

// PriorityWeights maps cycle theme priority to its draw weight.
func (c Config) PriorityWeights() map[int]int {
	return map[int]int{
		1: c.PriorityWeight1,
		2: c.PriorityWeight2,
		3: c.PriorityWeight3,
	}
}

// MySQLDSN builds the go-sql-driver DSN.
func (c Config) MySQLDSN() string {
	dsn := mysql.NewConfig()
	dsn.User = c.MySQLUser
	dsn.Passwd = c.MySQLPassword
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(c.MySQLHost, c.MySQLPort)
	dsn.DBName = c.MySQLDatabase
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// RedisAddr is host:port for go-redis.
func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
