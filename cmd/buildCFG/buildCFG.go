package buildCFG

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
)

type ServerConfig struct {
	Port    string
	BaseURL string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type AuthConfig struct {
	JWTSecret []byte
	TokenTTL  time.Duration
}

type PaymentConfig struct {
	StripeSecretKey string
	Currency        string
}

type BookingConfig struct {
	Timezone string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, defaulting to 8080")
	}
	baseURL := cfg.GetString("server.base_url")
	if baseURL == "" {
		baseURL = "http://localhost:" + port
		log.Warn().Msgf("server.base_url not set, defaulting to %s", baseURL)
	}
	return ServerConfig{Port: port, BaseURL: baseURL}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	host := cfg.GetString("database.host")
	port := cfg.GetString("database.port")
	user := cfg.GetString("database.user")
	password := cfg.GetString("database.password")
	name := cfg.GetString("database.name")
	sslmode := cfg.GetString("database.sslmode")
	if sslmode == "" {
		sslmode = "disable"
	}
	if host == "" || port == "" || user == "" || name == "" {
		return "", nil, nil, fmt.Errorf("incomplete database configuration")
	}

	masterDSN := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslmode)

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("database.conn_max_lifetime"),
	}
	log.Info().Msgf("DB config assembled for %s:%s/%s", host, port, name)
	return masterDSN, nil, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	url := cfg.GetString("rabbit.url")
	if url == "" {
		return RabbitConfig{}, fmt.Errorf("rabbit.url is not set")
	}
	exchange := cfg.GetString("rabbit.exchange")
	if exchange == "" {
		exchange = "coursebook"
	}
	queue := cfg.GetString("rabbit.queue")
	if queue == "" {
		queue = "booking.notices"
	}
	log.Info().Msgf("RabbitMQ config assembled for exchange %s, queue %s", exchange, queue)
	return RabbitConfig{Url: url, Exchange: exchange, Queue: queue}, nil
}

func BuildAuthConfig(cfg *config.Config, log *zerolog.Logger) (AuthConfig, error) {
	secret := cfg.GetString("auth.jwt_secret")
	if secret == "" {
		return AuthConfig{}, fmt.Errorf("auth.jwt_secret is not set")
	}
	ttl := cfg.GetDuration("auth.token_ttl")
	if ttl == 0 {
		ttl = 24 * time.Hour
		log.Warn().Msg("auth.token_ttl not set, defaulting to 24h")
	}
	return AuthConfig{JWTSecret: []byte(secret), TokenTTL: ttl}, nil
}

func BuildPaymentConfig(cfg *config.Config, log *zerolog.Logger) (PaymentConfig, error) {
	key := cfg.GetString("stripe.secret_key")
	if key == "" {
		return PaymentConfig{}, fmt.Errorf("stripe.secret_key is not set")
	}
	currency := cfg.GetString("stripe.currency")
	if currency == "" {
		currency = "eur"
		log.Warn().Msg("stripe.currency not set, defaulting to eur")
	}
	return PaymentConfig{StripeSecretKey: key, Currency: currency}, nil
}

func BuildBookingConfig(cfg *config.Config) BookingConfig {
	tz := cfg.GetString("booking.timezone")
	if tz == "" {
		tz = "Europe/Paris"
	}
	return BookingConfig{Timezone: tz}
}

func BuildSMTPConfig(cfg *config.Config, log *zerolog.Logger) SMTPConfig {
	smtp := SMTPConfig{
		Host:     cfg.GetString("smtp.host"),
		Port:     cfg.GetString("smtp.port"),
		Username: cfg.GetString("smtp.username"),
		Password: cfg.GetString("smtp.password"),
		From:     cfg.GetString("smtp.from"),
	}
	if smtp.Host == "" {
		log.Warn().Msg("smtp.host not set, mail notifications disabled")
	}
	return smtp
}
