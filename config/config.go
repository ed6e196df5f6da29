package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Game      GameConfig      `mapstructure:"game"`
	Security  SecurityConfig  `mapstructure:"security"`
	GenAI     GenAIConfig     `mapstructure:"genai"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"` // empty disables /api/admin
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// StoreConfig selects the document store backend behind the sync adapter.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // cache | sql
}

// GameConfig holds the product-tunable reward constants.
type GameConfig struct {
	Timezone          string         `mapstructure:"timezone"`
	StartXPToNext     int            `mapstructure:"start_xp_to_next"`
	StartVitality     int            `mapstructure:"start_vitality"`
	StartSatisfaction int            `mapstructure:"start_satisfaction"`
	DailyRewardXP     int            `mapstructure:"daily_reward_xp"`
	DailyRewardGold   int            `mapstructure:"daily_reward_gold"`
	PomodoroXP        int            `mapstructure:"pomodoro_xp"`
	PomodoroGold      int            `mapstructure:"pomodoro_gold"`
	PomodoroVitality  int            `mapstructure:"pomodoro_vitality"`
	DifficultyXP      map[string]int `mapstructure:"difficulty_xp"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTL         time.Duration `mapstructure:"jwt_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	AdminIPs       []string      `mapstructure:"admin_ips"` // empty allows any address
}

// GenAIConfig configures the generative text/image service. An empty
// Endpoint disables it; callers fall back to static content.
type GenAIConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RPS      float64       `mapstructure:"rps"`
}

type SchedulerConfig struct {
	DailyRolloverCron string        `mapstructure:"daily_rollover_cron"`
	IdleSweep         time.Duration `mapstructure:"idle_sweep"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
}

// Load reads config from the given YAML file path. A .env file next to the
// working directory is loaded first when present; LIFEQUEST_* environment
// variables override file values (server.port -> LIFEQUEST_SERVER_PORT).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("lifequest")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, _ := unmarshal(v)
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/lifequest.db")
	v.SetDefault("database.mysql_max_open", 20)
	v.SetDefault("database.mysql_max_idle", 5)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_prefix", "lifequest:")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("store.backend", "sql")
	v.SetDefault("game.timezone", "Local")
	v.SetDefault("game.start_xp_to_next", 100)
	v.SetDefault("game.start_vitality", 100)
	v.SetDefault("game.start_satisfaction", 50)
	v.SetDefault("game.daily_reward_xp", 50)
	v.SetDefault("game.daily_reward_gold", 25)
	v.SetDefault("game.pomodoro_xp", 25)
	v.SetDefault("game.pomodoro_gold", 5)
	v.SetDefault("game.pomodoro_vitality", 10)
	v.SetDefault("game.difficulty_xp", map[string]int{
		"easy":   100,
		"normal": 250,
		"hard":   500,
		"epic":   1000,
	})
	v.SetDefault("security.jwt_ttl", "72h")
	v.SetDefault("security.rate_limit_rps", 50)
	v.SetDefault("security.rate_limit_burst", 100)
	v.SetDefault("genai.model", "gpt-4o-mini")
	v.SetDefault("genai.timeout", "30s")
	v.SetDefault("genai.rps", 1)
	v.SetDefault("scheduler.daily_rollover_cron", "1 0 * * *")
	v.SetDefault("scheduler.idle_sweep", "5m")
	v.SetDefault("scheduler.idle_timeout", "30m")
	v.SetDefault("scheduler.job_timeout", "1m")
}

// Location resolves the configured time zone, falling back to time.Local.
func (g GameConfig) Location() *time.Location {
	if g.Timezone == "" || g.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
