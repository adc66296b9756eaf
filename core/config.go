package core

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const defaultSecretKey = "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"

type (
	Config struct {
		AppName                   string
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		DefaultFromEmail          string
		FrontendBaseURL           string
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		SendgridAPIKey            string
		CORSOrigins               []string
		Server                    ServerConfig
		Database                  DatabaseConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugAddress              string
		JWTAlgorithm              string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
		TokenCleanupSchedule      string // cron spec
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		URL           string // overrides every other connection setting when set
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		Path          string // sqlite only
	}
)

// Address returns the "host:port" of the database server.
func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

func (db DatabaseConfig) IsSQLite() bool {
	return db.Engine == "sqlite" || db.Engine == "sqlite3"
}

// NewConfig loads the configuration from the environment.
// The ENV variable selects the prefix of every other variable (eg: DEV_SECRET_KEY, PROD_DATABASE_HOST),
// and config/.env.<env> is loaded first when it exists.
func NewConfig() (*Config, error) {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	if err := loadDotEnv(env); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v, env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		AppName:                   v.GetString("app_name"),
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("test_mode"),
		SecretKey:                 v.GetString("secret_key"),
		DefaultFromEmail:          v.GetString("default_from_email"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontend_base_url"), "/"),
		PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),
		RollbarToken:              v.GetString("rollbar_token"),
		SendgridAPIKey:            v.GetString("sendgrid_api_key"),
		CORSOrigins:               splitList(v.GetString("cors_origins")),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugAddress:              v.GetString("server.debug_address"),
			JWTAlgorithm:              strings.ToUpper(v.GetString("server.jwt_algorithm")),
			JWTExpirationDelta:        v.GetDuration("server.jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwt_refresh_expiration_delta"),
			ShutdownTimeout:           v.GetDuration("server.shutdown_timeout"),
			TokenCleanupSchedule:      v.GetString("server.token_cleanup_schedule"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			URL:           v.GetString("database.url"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.admin_user"),
			AdminPassword: v.GetString("database.admin_password"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disable_tls"),
			Path:          v.GetString("database.path"),
		},
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("app_name", "Escolar")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("test_mode", env == "TEST")
	v.SetDefault("secret_key", defaultSecretKey)
	v.SetDefault("default_from_email", "Escolar <noreply@localhost>")
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)
	v.SetDefault("rollbar_token", "")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("cors_origins", "*")

	v.SetDefault("server.host", "localhost:8000")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debug_address", ":4000")
	v.SetDefault("server.jwt_algorithm", "HS256")
	v.SetDefault("server.jwt_expiration_delta", 20*time.Minute)
	v.SetDefault("server.jwt_refresh_expiration_delta", 90*24*time.Hour)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.token_cleanup_schedule", "0 2 * * *")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "escolar")
	v.SetDefault("database.password", "escolar")
	v.SetDefault("database.admin_user", "postgres")
	v.SetDefault("database.admin_password", "postgres")
	v.SetDefault("database.name", "escolar")
	v.SetDefault("database.disable_tls", env == "DEV" || env == "TEST")
	v.SetDefault("database.path", "escolar.db")
}

// Validate checks that the configuration is usable.
func (conf *Config) Validate() error {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.AppName, "app_name"),
		vala.StringNotEmpty(conf.SecretKey, "secret_key"),
		vala.StringNotEmpty(conf.Server.Address, "server.address"),
		oneOf(conf.Server.JWTAlgorithm, "server.jwt_algorithm", "HS256", "HS384", "HS512"),
		oneOf(conf.Database.Engine, "database.engine", "postgres", "sqlite", "sqlite3"),
		positive(conf.Server.JWTExpirationDelta, "server.jwt_expiration_delta"),
		positive(conf.Server.JWTRefreshExpirationDelta, "server.jwt_refresh_expiration_delta"),
		positive(conf.PasswordResetTimeoutDelta, "password_reset_timeout_delta"),
		notDefaultSecret(conf),
	).Check()
	return errors.Wrap(err, "invalid configuration")
}

func oneOf(val, name string, choices ...string) vala.Checker {
	return func() (bool, string) {
		for _, c := range choices {
			if val == c {
				return true, ""
			}
		}
		return false, fmt.Sprintf("%s must be one of %s (got %q)", name, strings.Join(choices, ", "), val)
	}
}

func positive(d time.Duration, name string) vala.Checker {
	return func() (bool, string) {
		if d > 0 {
			return true, ""
		}
		return false, fmt.Sprintf("%s must be positive", name)
	}
}

func notDefaultSecret(conf *Config) vala.Checker {
	return func() (bool, string) {
		if conf.Env == "PROD" && conf.SecretKey == defaultSecretKey {
			return false, "secret_key must be set in production"
		}
		return true, ""
	}
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// load .env if it exists (ignore if it does not)
func loadDotEnv(env string) error {
	dotEnvPath := filepath.Join(ProjectRoot(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	return nil
}
