package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/gigmarket/gigauth/internal/service/verification"
)

// Config хранит все настройки приложения
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Session   SessionConfig   `mapstructure:"session"`
	OTP       OTPConfig       `mapstructure:"otp"`
	Email     EmailConfig     `mapstructure:"email"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port           string   `mapstructure:"port" validate:"required"`
	ReadTimeout    int      `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout   int      `mapstructure:"write_timeout" validate:"gte=0"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable require verify-ca verify-full prefer allow"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode" validate:"oneof=single sentinel cluster"`

	// Addrs: Список адресов Redis (хост:порт). Для 'single' используется первый адрес.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`

	// OpTimeout ограничивает каждый запрос к кешу (сессии, счетчики попыток)
	OpTimeout time.Duration `mapstructure:"op_timeout" validate:"gt=0"`
}

// JWTConfig содержит настройки access-токенов
type JWTConfig struct {
	Secret        string `mapstructure:"secret" validate:"required,min=32"`
	ExpirationMin int    `mapstructure:"expiration_min" validate:"gt=0"`
	Issuer        string `mapstructure:"issuer"`
}

// AuthConfig содержит настройки входа по паролю
type AuthConfig struct {
	LoginMaxFailures int64         `mapstructure:"login_max_failures" validate:"gt=0"`
	LoginWindow      time.Duration `mapstructure:"login_window" validate:"gt=0"`
}

// SessionConfig: время жизни снимка сессии и refresh-токена в Redis
type SessionConfig struct {
	TTLSeconds int           `mapstructure:"ttl_seconds" validate:"gt=0"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" validate:"gt=0"`
}

// PolicyConfig: переопределение политики одного назначения кода
type PolicyConfig struct {
	CodeLength    int `mapstructure:"code_length" validate:"gte=4,lte=10"`
	ExpiryMinutes int `mapstructure:"expiry_minutes" validate:"gt=0"`
	MaxAttempts   int `mapstructure:"max_attempts" validate:"gt=0"`
}

// PoliciesConfig содержит ровно одну политику на каждое назначение
type PoliciesConfig struct {
	PasswordReset       PolicyConfig `mapstructure:"password_reset"`
	EmailVerification   PolicyConfig `mapstructure:"email_verification"`
	TwoFactorAuth       PolicyConfig `mapstructure:"two_factor_auth"`
	AccountVerification PolicyConfig `mapstructure:"account_verification"`
}

// OTPConfig содержит настройки выдачи и проверки одноразовых кодов
type OTPConfig struct {
	Pepper         string         `mapstructure:"pepper" validate:"required,min=16"`
	ResendCooldown time.Duration  `mapstructure:"resend_cooldown" validate:"gte=0"`
	IssueLimit     int64          `mapstructure:"issue_limit" validate:"gte=0"`
	IssueWindow    time.Duration  `mapstructure:"issue_window" validate:"gt=0"`
	VerifyLimit    int64          `mapstructure:"verify_limit" validate:"gte=0"`
	VerifyWindow   time.Duration  `mapstructure:"verify_window" validate:"gt=0"`
	IPLimit        int64          `mapstructure:"ip_limit" validate:"gte=0"`
	NotifyTimeout  time.Duration  `mapstructure:"notify_timeout" validate:"gt=0"`
	MaxCASRetries  int            `mapstructure:"max_cas_retries" validate:"gt=0"`
	Retention      time.Duration  `mapstructure:"retention" validate:"gt=0"`
	Policies       PoliciesConfig `mapstructure:"policies"`
}

// EmailConfig: отправка кодов через Resend. Пустой APIKey включает noop-отправку.
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from" validate:"required"`
	MaxRetries   int    `mapstructure:"max_retries" validate:"gte=0"`
}

// RateLimitConfig: лимит запросов на маршруты auth в middleware
type RateLimitConfig struct {
	Requests int64         `mapstructure:"requests" validate:"gt=0"`
	Window   time.Duration `mapstructure:"window" validate:"gt=0"`
	// FailOpen пропускает запросы, если Redis недоступен
	FailOpen bool `mapstructure:"fail_open"`
	// LocalRPS/LocalBurst: токен-бакет в памяти инстанса перед Redis
	LocalRPS   float64 `mapstructure:"local_rps" validate:"gte=0"`
	LocalBurst int     `mapstructure:"local_burst" validate:"gte=0"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// PostgresURL формирует URL для lib/pq и golang-migrate
func (d *DatabaseConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func (p PolicyConfig) policy() verification.Policy {
	return verification.Policy{
		CodeLength:    p.CodeLength,
		ExpiryMinutes: p.ExpiryMinutes,
		MaxAttempts:   p.MaxAttempts,
	}
}

// PolicyTable переводит конфигурацию в таблицу политик движка
func (o OTPConfig) PolicyTable() verification.PolicyTable {
	return verification.PolicyTable{
		PasswordReset:       o.Policies.PasswordReset.policy(),
		EmailVerification:   o.Policies.EmailVerification.policy(),
		TwoFactorAuth:       o.Policies.TwoFactorAuth.policy(),
		AccountVerification: o.Policies.AccountVerification.policy(),
	}
}

// EngineConfig переводит конфигурацию в настройки движка
func (o OTPConfig) EngineConfig() verification.Config {
	return verification.Config{
		CodePepper:     o.Pepper,
		ResendCooldown: o.ResendCooldown,
		IssueLimit:     o.IssueLimit,
		IssueWindow:    o.IssueWindow,
		VerifyLimit:    o.VerifyLimit,
		VerifyWindow:   o.VerifyWindow,
		IPLimit:        o.IPLimit,
		NotifyTimeout:  o.NotifyTimeout,
		MaxCASRetries:  o.MaxCASRetries,
	}
}

// SessionTTL возвращает время жизни снимка сессии
func (s SessionConfig) SessionTTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.read_timeout", 10)
	vip.SetDefault("server.write_timeout", 10)
	vip.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")

	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("redis.addr", "localhost:6379")
	vip.SetDefault("redis.op_timeout", 200*time.Millisecond)

	vip.SetDefault("jwt.expiration_min", 15)
	vip.SetDefault("jwt.issuer", "gigauth")

	vip.SetDefault("auth.login_max_failures", 10)
	vip.SetDefault("auth.login_window", 15*time.Minute)

	vip.SetDefault("session.ttl_seconds", 3600)
	vip.SetDefault("session.refresh_ttl", 30*24*time.Hour)

	engine := verification.DefaultConfig()
	vip.SetDefault("otp.resend_cooldown", engine.ResendCooldown)
	vip.SetDefault("otp.issue_limit", engine.IssueLimit)
	vip.SetDefault("otp.issue_window", engine.IssueWindow)
	vip.SetDefault("otp.verify_limit", engine.VerifyLimit)
	vip.SetDefault("otp.verify_window", engine.VerifyWindow)
	vip.SetDefault("otp.ip_limit", engine.IPLimit)
	vip.SetDefault("otp.notify_timeout", engine.NotifyTimeout)
	vip.SetDefault("otp.max_cas_retries", engine.MaxCASRetries)
	vip.SetDefault("otp.retention", 7*24*time.Hour)

	table := verification.DefaultPolicyTable()
	for name, p := range map[string]verification.Policy{
		"password_reset":       table.PasswordReset,
		"email_verification":   table.EmailVerification,
		"two_factor_auth":      table.TwoFactorAuth,
		"account_verification": table.AccountVerification,
	} {
		vip.SetDefault("otp.policies."+name+".code_length", p.CodeLength)
		vip.SetDefault("otp.policies."+name+".expiry_minutes", p.ExpiryMinutes)
		vip.SetDefault("otp.policies."+name+".max_attempts", p.MaxAttempts)
	}

	vip.SetDefault("email.from", "GigMarket <no-reply@gigmarket.dev>")
	vip.SetDefault("email.max_retries", 3)

	vip.SetDefault("rate_limit.requests", 30)
	vip.SetDefault("rate_limit.window", time.Minute)
	vip.SetDefault("rate_limit.fail_open", true)
	vip.SetDefault("rate_limit.local_rps", 20.0)
	vip.SetDefault("rate_limit.local_burst", 40)
}

func bindEnv(vip *viper.Viper) {
	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")
	vip.BindEnv("redis.op_timeout", "REDIS_OP_TIMEOUT")

	// JWT и сессии
	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.expiration_min", "JWT_EXPIRATION_MIN")
	vip.BindEnv("session.ttl_seconds", "SESSION_TTL_SECONDS")
	vip.BindEnv("session.refresh_ttl", "SESSION_REFRESH_TTL")

	// Auth
	vip.BindEnv("auth.login_max_failures", "AUTH_LOGIN_MAX_FAILURES")
	vip.BindEnv("auth.login_window", "AUTH_LOGIN_WINDOW")

	// OTP
	vip.BindEnv("otp.pepper", "OTP_PEPPER")
	vip.BindEnv("otp.resend_cooldown", "OTP_RESEND_COOLDOWN")
	vip.BindEnv("otp.issue_limit", "OTP_ISSUE_LIMIT")
	vip.BindEnv("otp.verify_limit", "OTP_VERIFY_LIMIT")
	vip.BindEnv("otp.retention", "OTP_RETENTION")

	// Email
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")

	// Rate limit
	vip.BindEnv("rate_limit.fail_open", "RATE_LIMIT_FAIL_OPEN")

	// Привязка для Server
	vip.BindEnv("server.port", "SERVER_PORT")
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Новый экземпляр Viper, чтобы избежать глобального состояния

	setDefaults(vip)
	bindEnv(vip)

	if configPath != "" {
		vip.SetConfigFile(configPath)
		// Файл не обязателен: значения могут прийти из окружения
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
				log.Printf("[Config] Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("[Config] WARN: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("[Config] --- Загруженные значения конфигурации ---")
		log.Printf("[Config] Database: %s@%s:%s/%s (sslmode=%s)", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, cfg.Database.SSLMode)
		log.Printf("[Config] Redis: mode=%s addr=%s op_timeout=%s", cfg.Redis.Mode, cfg.Redis.Addr, cfg.Redis.OpTimeout)
		log.Printf("[Config] Session TTL: %ds, refresh TTL: %s", cfg.Session.TTLSeconds, cfg.Session.RefreshTTL)
		log.Printf("[Config] OTP cooldown: %s, issue limit: %d/%s", cfg.OTP.ResendCooldown, cfg.OTP.IssueLimit, cfg.OTP.IssueWindow)
		log.Printf("[Config] Resend API key set: %t", cfg.Email.ResendAPIKey != "")
		log.Printf("[Config] Server Port: %s", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет конфигурацию по тегам validate и согласованность политик
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Redis.Addr == "" && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("invalid configuration: redis addr or addrs must be set (check REDIS_ADDR env var)")
	}
	if c.Redis.Mode == "sentinel" && c.Redis.MasterName == "" {
		return fmt.Errorf("invalid configuration: redis sentinel mode requires master_name")
	}
	if _, err := verification.NewPolicyRegistry(c.OTP.PolicyTable()); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if os.Getenv("GIN_MODE") == "release" && c.Database.Password == "" {
		return fmt.Errorf("database password is required in release mode (check DATABASE_PASSWORD env var)")
	}
	return nil
}
