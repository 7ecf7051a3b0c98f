// Package config loads the engagement agent's configuration. Env vars,
// defaults, and flag overrides all resolve through one viper precedence
// chain; no config file is read.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Crawlers CrawlersConfig
	Security SecurityConfig
}

type AppConfig struct {
	Env      string // APP_ENV
	LogLevel string // LOG_LEVEL
}

type ServerConfig struct {
	Host string // HOST
	Port string // PORT
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LLMConfig struct {
	Provider       string        // LLM_PROVIDER: openai|anthropic
	Model          string        // LLM_MODEL
	Temperature    float64       // LLM_TEMPERATURE
	MaxTokens      int           // LLM_MAX_TOKENS
	OpenAIAPIKey   string        // OPENAI_API_KEY
	AnthropicKey   string        // ANTHROPIC_API_KEY
	BaseURL        string        // openai-compatible chat/completions base
	RequestTimeout time.Duration
}

type CrawlersConfig struct {
	SerpAPIKey      string // SERPAPI_API_KEY
	RedditClientID  string
	RedditSecret    string
	RedditUserAgent string
	RedditUsername  string
	RedditPassword  string
	TwitterBearer   string // TWITTER_BEARER_TOKEN
	SupabaseURL     string
	SupabaseKey     string
	SupabaseService string
}

type SecurityConfig struct {
	EncryptionKey string // ENCRYPTION_KEY, used to derive credential-at-rest keys
	JWTSecret     string // JWT_SECRET, internal service token signing
}

// Load reads configuration from environment variables (with sane
// defaults), optionally overridden by command-line flags bound via
// BindPFlags. It never fails on a missing value; callers validate
// required fields (e.g. API keys) at the point of use.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	bind(v, "app.env", "APP_ENV")
	bind(v, "app.loglevel", "LOG_LEVEL")
	bind(v, "server.host", "HOST")
	bind(v, "server.port", "PORT")
	bind(v, "database.host", "DB_HOST")
	bind(v, "database.port", "DB_PORT")
	bind(v, "database.user", "DB_USER")
	bind(v, "database.password", "DB_PASSWORD")
	bind(v, "database.dbname", "DB_NAME")
	bind(v, "database.sslmode", "DB_SSL_MODE")
	bind(v, "redis.addr", "REDIS_ADDR")
	bind(v, "redis.password", "REDIS_PASSWORD")
	bind(v, "redis.db", "REDIS_DB")
	bind(v, "llm.provider", "LLM_PROVIDER")
	bind(v, "llm.model", "LLM_MODEL")
	bind(v, "llm.temperature", "LLM_TEMPERATURE")
	bind(v, "llm.maxtokens", "LLM_MAX_TOKENS")
	bind(v, "llm.openaiapikey", "OPENAI_API_KEY")
	bind(v, "llm.anthropickey", "ANTHROPIC_API_KEY")
	bind(v, "llm.baseurl", "LLM_BASE_URL")
	bind(v, "crawlers.serpapikey", "SERPAPI_API_KEY")
	bind(v, "crawlers.redditclientid", "REDDIT_CLIENT_ID")
	bind(v, "crawlers.redditsecret", "REDDIT_CLIENT_SECRET")
	bind(v, "crawlers.reddituseragent", "REDDIT_USER_AGENT")
	bind(v, "crawlers.redditusername", "REDDIT_USERNAME")
	bind(v, "crawlers.redditpassword", "REDDIT_PASSWORD")
	bind(v, "crawlers.twitterbearer", "TWITTER_BEARER_TOKEN")
	bind(v, "crawlers.supabaseurl", "SUPABASE_URL")
	bind(v, "crawlers.supabasekey", "SUPABASE_KEY")
	bind(v, "crawlers.supabaseservice", "SUPABASE_SERVICE_ROLE_KEY")
	bind(v, "security.encryptionkey", "ENCRYPTION_KEY")
	bind(v, "security.jwtsecret", "JWT_SECRET")

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("app.env"),
			LogLevel: v.GetString("app.loglevel"),
		},
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetString("server.port"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("database.host"),
			Port:     v.GetString("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		LLM: LLMConfig{
			Provider:       v.GetString("llm.provider"),
			Model:          v.GetString("llm.model"),
			Temperature:    v.GetFloat64("llm.temperature"),
			MaxTokens:      v.GetInt("llm.maxtokens"),
			OpenAIAPIKey:   v.GetString("llm.openaiapikey"),
			AnthropicKey:   v.GetString("llm.anthropickey"),
			BaseURL:        v.GetString("llm.baseurl"),
			RequestTimeout: 45 * time.Second,
		},
		Crawlers: CrawlersConfig{
			SerpAPIKey:      v.GetString("crawlers.serpapikey"),
			RedditClientID:  v.GetString("crawlers.redditclientid"),
			RedditSecret:    v.GetString("crawlers.redditsecret"),
			RedditUserAgent: v.GetString("crawlers.reddituseragent"),
			RedditUsername:  v.GetString("crawlers.redditusername"),
			RedditPassword:  v.GetString("crawlers.redditpassword"),
			TwitterBearer:   v.GetString("crawlers.twitterbearer"),
			SupabaseURL:     v.GetString("crawlers.supabaseurl"),
			SupabaseKey:     v.GetString("crawlers.supabasekey"),
			SupabaseService: v.GetString("crawlers.supabaseservice"),
		},
		Security: SecurityConfig{
			EncryptionKey: v.GetString("security.encryptionkey"),
			JWTSecret:     v.GetString("security.jwtsecret"),
		},
	}
	return cfg, nil
}

func bind(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.loglevel", "info")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "engagement_agent")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.maxtokens", 800)
	v.SetDefault("llm.baseurl", "https://api.openai.com/v1")
}
