package config // package config loads application configuration from environment variables

import (
    "errors"
    "fmt"
    "log"
    "net"
    "os"
    "strings"
    "time"

    "github.com/joho/godotenv"

    "github.com/iliyamo/club-manager/internal/model"
    "github.com/iliyamo/club-manager/internal/security"
)

// Throttle backends selectable with THROTTLE_BACKEND.
const (
    ThrottleMySQL = "mysql"
    ThrottleRedis = "redis"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env              string // application environment (e.g. "dev", "production")
    Port             string // HTTP port to listen on
    DBUser           string // database username
    DBPass           string // database password (optional)
    DBHost           string // database host address
    DBPort           string // database port number
    DBName           string // database name
    SigningSecret    string // HS256 secret; empty makes every auth call fail with config_error
    ServiceToken     string // shared secret for service callers (optional)
    PBKDF2Iterations int    // clamped to security.MaxIterations
    AccessTTL        time.Duration
    RefreshTTL       time.Duration
    Throttle         model.ThrottlePolicy
    ThrottleBackend  string       // "mysql" (default) or "redis"
    RabbitURL        string       // AMQP URL for audit events; empty disables publishing
    AuditLogDir      string       // directory of auth.log written by the audit consumer
    TrustedProxies   []*net.IPNet // proxies whose X-Forwarded-For is believed; empty means none
}

// Load reads configuration values from environment variables and returns a
// Config.  A .env file in the working directory is loaded first when
// present; real environment variables win over it.  Required variables are
// enforced by must() and missing values cause the program to exit.
func Load() Config {
    _ = godotenv.Load()
    return Config{
        Env:              envStr("APP_ENV", "dev"),
        Port:             envStr("APP_PORT", "8080"),
        DBUser:           must("DB_USER"),
        DBPass:           os.Getenv("DB_PASS"),
        DBHost:           must("DB_HOST"),
        DBPort:           envStr("DB_PORT", "3306"),
        DBName:           must("DB_NAME"),
        SigningSecret:    signingSecret(),
        ServiceToken:     os.Getenv("SERVICE_TOKEN"),
        PBKDF2Iterations: security.ClampIterations(envInt("PBKDF2_ITERATIONS", security.DefaultIterations)),
        AccessTTL:        time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
        RefreshTTL:       time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
        Throttle: model.ThrottlePolicy{
            MaxAttempts: envInt("LOGIN_MAX_ATTEMPTS", 5),
            Window:      time.Duration(envInt("LOGIN_WINDOW_SECONDS", 900)) * time.Second,
            Lockout:     time.Duration(envInt("LOGIN_LOCKOUT_SECONDS", 900)) * time.Second,
        },
        ThrottleBackend: strings.ToLower(envStr("THROTTLE_BACKEND", ThrottleMySQL)),
        RabbitURL:       os.Getenv("RABBITMQ_URL"),
        AuditLogDir:     envStr("AUDIT_LOG_DIR", "logs"),
        TrustedProxies:  mustCIDRs("TRUSTED_PROXIES"),
    }
}

// IsProduction reports whether Env names a production deployment.
func (c Config) IsProduction() bool {
    return c.Env == "production" || c.Env == "prod"
}

// signingSecret prefers AUTH_SIGNING_SECRET and falls back to JWT_SECRET.
func signingSecret() string {
    if v := os.Getenv("AUTH_SIGNING_SECRET"); v != "" {
        return v
    }
    return os.Getenv("JWT_SECRET")
}

// Known weak/default secrets that should never be used in production.
var knownWeakSecrets = []string{
    "changeme",
    "secret",
    "password",
    "test",
    "dev",
    "development",
    "jwt-secret",
}

var (
    ErrSecretMissing = errors.New("signing secret not configured")
    ErrSecretWeak    = errors.New("signing secret is a known default")
)

// ValidateSecret checks the signing secret.  Outside production a weak
// default is accepted.  The server logs the result instead of refusing
// to start; auth calls report config_error while the secret is empty.
func ValidateSecret(secret string, production bool) error {
    if secret == "" {
        return ErrSecretMissing
    }
    for _, weak := range knownWeakSecrets {
        if secret == weak {
            if production {
                return ErrSecretWeak
            }
            return nil
        }
    }
    if len(secret) < 32 {
        return fmt.Errorf("signing secret must be at least 32 characters (got %d)", len(secret))
    }
    return nil
}

// mustCIDRs parses an optional CIDR list and exits on a malformed entry.
func mustCIDRs(key string) []*net.IPNet {
    nets, err := envCIDRs(key)
    if err != nil {
        log.Fatalf("invalid env var: %v", err)
    }
    return nets
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
