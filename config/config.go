package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"food-ordering-api/models"
)

// DB is the process-wide connection opened by main.
var DB *gorm.DB

type Config struct {
	Port    string
	GinMode string
	DSN     string

	JWTSecret string
	JWTExpire time.Duration
	JWTIssuer string

	// RequireApproval hides unapproved restaurants from public listings.
	RequireApproval bool
	CORSOrigins     []string

	LogLevel  string
	LogFormat string

	BlobBackend   string
	UploadDir     string
	MongoURI      string
	MongoDatabase string
	KafkaBrokers  []string
	KafkaTopic    string

	DemoAccounts  string
	AdminEmail    string
	AdminPassword string
}

// Load reads the environment, after applying an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	expire, err := parseDuration(getEnv("JWT_EXPIRE", "30d"))
	if err != nil {
		return nil, fmt.Errorf("JWT_EXPIRE: %w", err)
	}
	requireApproval, err := strconv.ParseBool(getEnv("LISTING_REQUIRE_APPROVAL", "true"))
	if err != nil {
		return nil, fmt.Errorf("LISTING_REQUIRE_APPROVAL: %w", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "5000"),
		GinMode:         os.Getenv("GIN_MODE"),
		DSN:             getEnv("DATABASE_DSN", "food_ordering.db"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTExpire:       expire,
		JWTIssuer:       getEnv("JWT_ISSUER", "food-ordering-api"),
		RequireApproval: requireApproval,
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		BlobBackend:     getEnv("BLOB_BACKEND", "disk"),
		UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		MongoURI:        os.Getenv("MONGODB_URI"),
		MongoDatabase:   getEnv("MONGODB_DATABASE", "food_ordering"),
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "order-events"),
		DemoAccounts:    os.Getenv("DEMO_ACCOUNTS"),
		AdminEmail:      os.Getenv("ADMIN_EMAIL"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	switch cfg.BlobBackend {
	case "disk":
	case "gridfs":
		if cfg.MongoURI == "" {
			return nil, errors.New("MONGODB_URI must be set when BLOB_BACKEND=gridfs")
		}
	default:
		return nil, fmt.Errorf("BLOB_BACKEND: unknown backend %q", cfg.BlobBackend)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDuration accepts Go durations plus a bare day count such as "30d".
func parseDuration(raw string) (time.Duration, error) {
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(raw)
}

// OpenDB connects to SQLite and migrates every model.
func OpenDB(dsn string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}
	// orders outlive the restaurants and menu items they reference
	gormCfg.DisableForeignKeyConstraintWhenMigrating = true

	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under load.
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Restaurant{},
		&models.MenuItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusHistory{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
