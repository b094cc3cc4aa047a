package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const devSecretKey = "k1w8-zq)3pc!_7+9ynd&f2ls(u@a#3b5(e%h0r*jm6x4tvg"

type (
	serverConfig struct {
		Host                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	databaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
		MaxIdleConns  int
		InMemory      bool // DEV only: use the in-memory repositories
	}

	storageConfig struct {
		Backend             string // local | s3
		LocalDir            string
		S3Bucket            string
		S3Region            string
		S3Endpoint          string
		MaxUploadSize       int64
		AllowedContentTypes []string
	}

	redisConfig struct {
		URL string
	}

	rateLimitConfig struct {
		Attempts int
		Window   time.Duration
	}

	assessmentConfig struct {
		MinAnonymousGroupSize int
	}

	Config struct {
		Env                       string // DEV (local; default), TEST, QA, PROD
		Debug                     bool
		TestMode                  bool
		Build                     string
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration

		Server     serverConfig
		Database   databaseConfig
		Storage    storageConfig
		Redis      redisConfig
		RateLimit  rateLimitConfig
		Assessment assessmentConfig
	}
)

// Address returns the database host:port pair.
func (c databaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "TOS")
	v.SetDefault("secretKey", devSecretKey)
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "TOS <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tos")
	v.SetDefault("database.user", "tos")
	v.SetDefault("database.password", "tos")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.inMemory", false)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.localDir", "uploads")
	v.SetDefault("storage.s3Bucket", "")
	v.SetDefault("storage.s3Region", "eu-west-1")
	v.SetDefault("storage.s3Endpoint", "")
	v.SetDefault("storage.maxUploadSize", int64(10<<20))
	v.SetDefault("storage.allowedContentTypes", []string{
		"application/pdf",
		"image/png",
		"image/jpeg",
		"image/gif",
		"text/plain",
		"text/csv",
		"application/zip", // docx, xlsx, pptx
	})

	v.SetDefault("redis.url", "")

	v.SetDefault("rateLimit.attempts", 5)
	v.SetDefault("rateLimit.window", 15*time.Minute)

	v.SetDefault("assessment.minAnonymousGroupSize", 3)
}

// NewConfig loads the configuration of the current ENV.
// Values are looked up as <ENV>_<KEY> environment variables (eg. PROD_DATABASE_HOST),
// after loading config/.env.<env> if it exists.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf, err := configFromViper(v, env)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

func configFromViper(v *viper.Viper, env string) (*Config, error) {
	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		return nil, fmt.Errorf("parsing defaultFromEmail: %w", err)
	}

	conf := &Config{
		Env:                       env,
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		Build:                     v.GetString("build"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          *from,
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: serverConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: databaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
			MaxIdleConns:  v.GetInt("database.maxIdleConns"),
			InMemory:      v.GetBool("database.inMemory"),
		},
		Storage: storageConfig{
			Backend:             v.GetString("storage.backend"),
			LocalDir:            v.GetString("storage.localDir"),
			S3Bucket:            v.GetString("storage.s3Bucket"),
			S3Region:            v.GetString("storage.s3Region"),
			S3Endpoint:          v.GetString("storage.s3Endpoint"),
			MaxUploadSize:       v.GetInt64("storage.maxUploadSize"),
			AllowedContentTypes: v.GetStringSlice("storage.allowedContentTypes"),
		},
		Redis: redisConfig{
			URL: v.GetString("redis.url"),
		},
		RateLimit: rateLimitConfig{
			Attempts: v.GetInt("rateLimit.attempts"),
			Window:   v.GetDuration("rateLimit.window"),
		},
		Assessment: assessmentConfig{
			MinAnonymousGroupSize: v.GetInt("assessment.minAnonymousGroupSize"),
		},
	}

	if env == "PROD" && conf.SecretKey == devSecretKey {
		return nil, fmt.Errorf("secretKey must be set in PROD")
	}
	return conf, nil
}

// NewTestConfig returns the configuration used by tests: defaults only, test mode on.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("testMode", true)
	v.Set("database.inMemory", true)
	conf, err := configFromViper(v, "TEST")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}
