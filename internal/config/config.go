package config

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	Database   Database   `mapstructure:"database"`
	Minio      Minio      `mapstructure:"minio"`
	EEdition   EEdition   `mapstructure:"eedition"`
	Proxy      Proxy      `mapstructure:"proxy"`
	OpenAI     OpenAI     `mapstructure:"openai"`
	Gemini     Gemini     `mapstructure:"gemini"`
	Summarizer Summarizer `mapstructure:"summarizer"`
	Analysis   Analysis   `mapstructure:"analysis"`
	Weaviate   Weaviate   `mapstructure:"weaviate"`
	Qdrant     Qdrant     `mapstructure:"qdrant"`
	Ntfy       Ntfy       `mapstructure:"ntfy"`
	Reddit     Reddit     `mapstructure:"reddit"`
	NWS        NWS        `mapstructure:"nws"`
	Facebook   Facebook   `mapstructure:"facebook"`
	Metrics    Metrics    `mapstructure:"metrics"`
	Server     Server     `mapstructure:"server"`
}

// App holds general application configuration
type App struct {
	Debug              bool   `mapstructure:"debug"`
	LogLevel           string `mapstructure:"log_level"`
	ConfigFile         string `mapstructure:"config_file"`
	StateDir           string `mapstructure:"state_dir"`
	CacheRetentionDays int    `mapstructure:"cache_retention_days"`
}

// Database holds the Postgres connection settings
type Database struct {
	URL string `mapstructure:"url"`
}

// Minio holds the object cache settings
type Minio struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
}

// EEdition holds credentials and site settings for the paywalled e-edition
type EEdition struct {
	User                string `mapstructure:"user"`
	Pass                string `mapstructure:"pass"`
	BaseURL             string `mapstructure:"base_url"`
	Publication         string `mapstructure:"publication"`
	LockoutCooldownHrs  int    `mapstructure:"lockout_cooldown_hours"`
	StorageStatePath    string `mapstructure:"storage_state_path"`
}

// Proxy holds the rotating egress proxy pool settings
type Proxy struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Ports    []int  `mapstructure:"ports"`
}

// OpenAI holds the OpenAI-compatible LLM endpoint settings
type OpenAI struct {
	APIKey         string   `mapstructure:"api_key"`
	APIBase        string   `mapstructure:"api_base"`
	Model          string   `mapstructure:"model"`
	FallbackModels []string `mapstructure:"fallback_models"`
	MaxTokens      int      `mapstructure:"max_tokens"`
	EmbedModel     string   `mapstructure:"embed_model"`
	Timeout        string   `mapstructure:"timeout"`
}

// Gemini holds the fallback embedding backend settings
type Gemini struct {
	APIKey      string `mapstructure:"api_key"`
	EmbedModel  string `mapstructure:"embed_model"`
	EnableEmbed bool   `mapstructure:"enable_embed"`
}

// Summarizer holds batch processing settings
type Summarizer struct {
	BatchSize  int `mapstructure:"batch_size"`
	MaxBatches int `mapstructure:"max_batches"`
	MaxRetries int `mapstructure:"max_retries"`
}

// Analysis holds trending/forecast settings
type Analysis struct {
	Window int `mapstructure:"window"`
	Days   int `mapstructure:"days"`
}

// Weaviate holds the keyword+vector index settings
type Weaviate struct {
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"api_key"`
	SyncHours int    `mapstructure:"sync_hours"`
}

// Qdrant holds the secondary vector index settings
type Qdrant struct {
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"api_key"`
	SyncHours int    `mapstructure:"sync_hours"`
}

// Ntfy holds push notification settings
type Ntfy struct {
	URL        string `mapstructure:"url"`
	Topic      string `mapstructure:"topic"`
	Token      string `mapstructure:"token"`
	AttachFull bool   `mapstructure:"attach_full"`
}

// Reddit holds Reddit API settings
type Reddit struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	AppType      string `mapstructure:"app_type"`
	UserAgent    string `mapstructure:"user_agent"`
	Subreddits   string `mapstructure:"subreddits"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	Scopes       string `mapstructure:"scopes"`
}

// NWS holds National Weather Service alert settings
type NWS struct {
	Zones string `mapstructure:"zones"`
}

// Facebook holds Graph API settings
type Facebook struct {
	AccessToken string `mapstructure:"access_token"`
	PageIDs     string `mapstructure:"page_ids"`
}

// Metrics holds Pushgateway settings
type Metrics struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
	LabelsJSON     string `mapstructure:"labels_json"`
}

// Server holds the feed API settings
type Server struct {
	Addr string `mapstructure:"addr"`
}

var globalConfig *Config

// Load loads the configuration from .env, config file, and environment
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".swvanews")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the loaded configuration. Intended for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.state_dir", ".swvanews")
	viper.SetDefault("app.cache_retention_days", 7)

	viper.SetDefault("minio.bucket", "news-cache")

	viper.SetDefault("eedition.base_url", "https://swvatoday.com/eedition/smyth_county/")
	viper.SetDefault("eedition.publication", "smyth_county")
	viper.SetDefault("eedition.lockout_cooldown_hours", 6)
	viper.SetDefault("eedition.storage_state_path", "storage_state.json")

	viper.SetDefault("proxy.ports", []int{10001, 10002, 10003, 10004, 10005})

	viper.SetDefault("openai.api_base", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.max_tokens", 1000)
	viper.SetDefault("openai.embed_model", "text-embedding-3-small")
	viper.SetDefault("openai.timeout", "60s")

	viper.SetDefault("gemini.embed_model", "text-embedding-004")
	viper.SetDefault("gemini.enable_embed", false)

	viper.SetDefault("summarizer.batch_size", 10)
	viper.SetDefault("summarizer.max_batches", 10)
	viper.SetDefault("summarizer.max_retries", 3)

	viper.SetDefault("analysis.window", 7)
	viper.SetDefault("analysis.days", 3)

	viper.SetDefault("weaviate.sync_hours", 12)
	viper.SetDefault("qdrant.sync_hours", 12)

	viper.SetDefault("ntfy.topic", "news-digest")

	viper.SetDefault("reddit.app_type", "client_credentials")
	viper.SetDefault("reddit.user_agent", "swvanews/0.1")
	viper.SetDefault("reddit.scopes", "read")

	viper.SetDefault("nws.zones", "VAZ022,VAZ023,VAZ024")

	viper.SetDefault("metrics.job_name", "swvanews_scraper")

	viper.SetDefault("server.addr", ":8080")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("database.url", []string{"DATABASE_URL"})

	bindEnvKeys("minio.endpoint", []string{"MINIO_ENDPOINT"})
	bindEnvKeys("minio.access_key", []string{"MINIO_ACCESS_KEY"})
	bindEnvKeys("minio.secret_key", []string{"MINIO_SECRET_KEY"})
	bindEnvKeys("minio.bucket", []string{"MINIO_BUCKET"})

	bindEnvKeys("eedition.user", []string{"EEDITION_USER"})
	bindEnvKeys("eedition.pass", []string{"EEDITION_PASS"})
	bindEnvKeys("eedition.lockout_cooldown_hours", []string{"LOCKOUT_COOLDOWN_HOURS"})

	bindEnvKeys("proxy.username", []string{"SMARTPROXY_USERNAME"})
	bindEnvKeys("proxy.password", []string{"SMARTPROXY_PASSWORD"})
	bindEnvKeys("proxy.host", []string{"SMARTPROXY_HOST"})

	bindEnvKeys("openai.api_key", []string{"OPENAI_API_KEY"})
	bindEnvKeys("openai.api_base", []string{"OPENAI_API_BASE"})
	bindEnvKeys("openai.model", []string{"OPENAI_MODEL"})
	bindEnvKeys("openai.max_tokens", []string{"OPENAI_MAX_TOKENS"})
	bindEnvKeys("openai.embed_model", []string{"OPENAI_EMBED_MODEL"})

	bindEnvKeys("gemini.api_key", []string{"GEMINI_API_KEY", "GOOGLE_AI_API_KEY"})
	bindEnvKeys("gemini.enable_embed", []string{"ENABLE_GEMINI_EMBED"})

	bindEnvKeys("summarizer.batch_size", []string{"SUMMARIZER_BATCH_SIZE"})
	bindEnvKeys("summarizer.max_batches", []string{"SUMMARIZER_MAX_BATCHES"})
	bindEnvKeys("summarizer.max_retries", []string{"SUMMARIZER_MAX_RETRIES"})

	bindEnvKeys("analysis.window", []string{"ANALYSIS_WINDOW"})
	bindEnvKeys("analysis.days", []string{"ANALYSIS_DAYS"})

	bindEnvKeys("weaviate.url", []string{"WEAVIATE_URL"})
	bindEnvKeys("weaviate.api_key", []string{"WEAVIATE_API_KEY"})
	bindEnvKeys("weaviate.sync_hours", []string{"WEAVIATE_SYNC_HOURS"})

	bindEnvKeys("qdrant.url", []string{"QDRANT_URL"})
	bindEnvKeys("qdrant.api_key", []string{"QDRANT_API_KEY"})
	bindEnvKeys("qdrant.sync_hours", []string{"QDRANT_SYNC_HOURS"})

	bindEnvKeys("ntfy.url", []string{"NTFY_URL"})
	bindEnvKeys("ntfy.topic", []string{"NTFY_TOPIC"})
	bindEnvKeys("ntfy.token", []string{"NTFY_TOKEN"})

	bindEnvKeys("reddit.client_id", []string{"REDDIT_CLIENT_ID"})
	bindEnvKeys("reddit.client_secret", []string{"REDDIT_CLIENT_SECRET"})
	bindEnvKeys("reddit.username", []string{"REDDIT_USERNAME"})
	bindEnvKeys("reddit.password", []string{"REDDIT_PASSWORD"})
	bindEnvKeys("reddit.app_type", []string{"REDDIT_APP_TYPE"})
	bindEnvKeys("reddit.user_agent", []string{"REDDIT_USER_AGENT"})
	bindEnvKeys("reddit.subreddits", []string{"REDDIT_SUBREDDITS"})
	bindEnvKeys("reddit.redirect_uri", []string{"REDDIT_REDIRECT_URI"})

	bindEnvKeys("nws.zones", []string{"NWS_ZONES"})

	bindEnvKeys("facebook.access_token", []string{"FACEBOOK_ACCESS_TOKEN"})
	bindEnvKeys("facebook.page_ids", []string{"FACEBOOK_PAGE_IDS"})

	bindEnvKeys("metrics.pushgateway_url", []string{"METRICS_PUSHGATEWAY_URL"})
	bindEnvKeys("metrics.job_name", []string{"METRICS_JOB_NAME"})
	bindEnvKeys("metrics.labels_json", []string{"METRICS_LABELS_JSON"})

	bindEnvKeys("app.cache_retention_days", []string{"CACHE_RETENTION_DAYS"})
	bindEnvKeys("app.log_level", []string{"LOG_LEVEL"})
	bindEnvKeys("server.addr", []string{"SERVER_ADDR"})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// validateConfig checks invariants that every command depends on
func validateConfig(config *Config) error {
	if config.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if config.Summarizer.BatchSize <= 0 {
		return fmt.Errorf("summarizer.batch_size must be positive")
	}
	if config.Analysis.Window <= 0 {
		return fmt.Errorf("analysis.window must be positive")
	}
	return nil
}

// SubredditList splits the configured subreddits, falling back to the
// regional seed list.
func (r Reddit) SubredditList() []string {
	if strings.TrimSpace(r.Subreddits) != "" {
		var subs []string
		for _, s := range strings.Split(r.Subreddits, ",") {
			if s = strings.TrimSpace(s); s != "" {
				subs = append(subs, s)
			}
		}
		return subs
	}
	return []string{
		"AbingdonVA", "BristolTN", "BristolVA", "Roanoke",
		"Blacksburg", "Christiansburg", "Virginiatech", "Virginia",
		"wythecounty",
	}
}

// URLs returns one proxy URL per configured egress port, or nil when no
// proxy pool is configured.
func (p Proxy) URLs() []string {
	if p.Host == "" || len(p.Ports) == 0 {
		return nil
	}
	urls := make([]string, 0, len(p.Ports))
	for _, port := range p.Ports {
		if p.Username != "" {
			urls = append(urls, fmt.Sprintf("http://%s:%s@%s:%d", p.Username, p.Password, p.Host, port))
		} else {
			urls = append(urls, fmt.Sprintf("http://%s:%d", p.Host, port))
		}
	}
	return urls
}

// Random picks one proxy URL uniformly, or "" when no pool is configured.
func (p Proxy) Random() string {
	urls := p.URLs()
	if len(urls) == 0 {
		return ""
	}
	return urls[rand.Intn(len(urls))]
}

// PageIDList splits the configured Facebook page ids.
func (f Facebook) PageIDList() []string {
	var ids []string
	for _, id := range strings.Split(f.PageIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ZoneList splits the configured NWS zones.
func (n NWS) ZoneList() []string {
	var zones []string
	for _, z := range strings.Split(n.Zones, ",") {
		if z = strings.TrimSpace(z); z != "" {
			zones = append(zones, z)
		}
	}
	return zones
}
