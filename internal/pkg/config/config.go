package config

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

const (
	defaultGatewayURL  = "https://testpayment.cmi.co.ma/fim/est3Dgate"
	defaultShopURL     = "http://localhost:3000"
	defaultCurrency    = "504" // MAD
	defaultLang        = "fr"
	defaultWorkerCount = 4
)

// Config is the typed view of the process environment.
type Config struct {
	Host string
	Port string

	Cache     CacheConfig
	Gateway   GatewayConfig
	Forwarder ForwarderConfig

	// APIKey protects the create and status endpoints when set.
	APIKey          string
	MetricsUser     string
	MetricsPassword string
	CORSOrigins     string
}

type CacheConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// GatewayConfig holds the CMI merchant settings.
type GatewayConfig struct {
	StoreKey    string
	ClientID    string
	GatewayURL  string
	ShopURL     string
	OkURL       string
	FailURL     string
	CallbackURL string
	Currency    string
	Lang        string
}

type ForwarderConfig struct {
	EndpointURL string
	APIKey      string
	Workers     int
}

// Load reads the configuration via env.GetEnv. Call env.SetupEnvFile first.
func Load() Config {
	shopURL := strings.TrimRight(env.GetEnv("SHOP_URL", defaultShopURL), "/")

	return Config{
		Host: env.GetEnv("APP_HOST", "localhost"),
		Port: env.GetEnv("APP_PORT", "3000"),
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       getInt("CACHE_DB", 0),
		},
		Gateway: GatewayConfig{
			StoreKey:    env.GetEnv("CMI_STORE_KEY", ""),
			ClientID:    env.GetEnv("CMI_CLIENT_ID", ""),
			GatewayURL:  strings.TrimSpace(env.GetEnv("CMI_GATEWAY_URL", defaultGatewayURL)),
			ShopURL:     shopURL,
			OkURL:       env.GetEnv("OK_URL", shopURL+"/success"),
			FailURL:     env.GetEnv("FAIL_URL", shopURL+"/failure"),
			CallbackURL: env.GetEnv("CALLBACK_URL", shopURL+"/api/payments/callback"),
			Currency:    env.GetEnv("CMI_CURRENCY", defaultCurrency),
			Lang:        env.GetEnv("CMI_LANG", defaultLang),
		},
		Forwarder: ForwarderConfig{
			EndpointURL: strings.TrimSpace(env.GetEnv("BUBBLE_ENDPOINT_URL", "")),
			APIKey:      env.GetEnv("BUBBLE_API_KEY", ""),
			Workers:     getInt("FORWARDER_WORKERS", defaultWorkerCount),
		},
		APIKey:          strings.TrimSpace(env.GetEnv("API_KEY", "")),
		MetricsUser:     env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
		CORSOrigins:     env.GetEnv("CORS_ORIGINS", "*"),
	}
}

// LogSummary prints the configuration with secrets masked.
func (c Config) LogSummary() {
	log.Infof("[Config] CMI store key: %s, client id: %s", setOrNot(c.Gateway.StoreKey), setOrNot(c.Gateway.ClientID))
	log.Infof("[Config] shop url: %s, ok url: %s, fail url: %s, callback url: %s",
		c.Gateway.ShopURL, c.Gateway.OkURL, c.Gateway.FailURL, c.Gateway.CallbackURL)
	log.Infof("[Config] forwarder endpoint: %s, api key: %s, workers: %d",
		setOrNot(c.Forwarder.EndpointURL), setOrNot(c.Forwarder.APIKey), c.Forwarder.Workers)
}

func setOrNot(v string) string {
	if v == "" {
		return "NOT SET"
	}
	return "***SET***"
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warnf("[Config] Invalid integer for %s=%q, using %d", key, raw, def)
		return def
	}
	return v
}
