package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Source backends.
const (
	BackendREST   = "rest"
	BackendSheets = "sheets"
	BackendMemory = "memory"
)

var validBackends = []string{BackendREST, BackendSheets, BackendMemory}

type Config struct {
	// HTTP Server
	Port               string
	LogLevel           string
	RateLimitPerMinute int

	// Report source
	SourceBackend string
	SourceBaseURL string
	SourceToken   string
	SourceTimeout time.Duration
	DataDir       string

	// Sales payload field names
	SalesFieldCategory string
	SalesFieldBucket   string
	SalesFieldAmount   string
	SalesFieldQuantity string

	Currency    string
	PDFFontPath string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID          string
	GoogleSalesSheet             string
	GoogleProfitsSheet           string
	GoogleProductsSheet          string
	GoogleServiceAccountJSON     string
	GoogleServiceAccountFile     string
	GoogleApplicationCredentials string

	// View sessions
	SessionTTL       time.Duration
	SessionCacheSize int

	// Publish worker
	PublishBatchSize  int
	PublishInterval   time.Duration
	PublishMaxRetries int
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		SourceBackend: strings.ToLower(getEnv("SOURCE_BACKEND", BackendMemory)),
		SourceBaseURL: getEnv("SOURCE_BASE_URL", ""),
		SourceToken:   getEnv("SOURCE_TOKEN", ""),
		SourceTimeout: getEnvDuration("SOURCE_TIMEOUT", 10*time.Second),
		DataDir:       getEnv("DATA_DIR", "./data"),

		SalesFieldCategory: getEnv("SALES_FIELD_CATEGORY", "product"),
		SalesFieldBucket:   getEnv("SALES_FIELD_BUCKET", "month"),
		SalesFieldAmount:   getEnv("SALES_FIELD_AMOUNT", "total_sales"),
		SalesFieldQuantity: getEnv("SALES_FIELD_QUANTITY", "total_quantity"),

		Currency:    getEnv("CURRENCY", "UGX"),
		PDFFontPath: getEnv("PDF_FONT_PATH", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/eaccountant.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "eaccountant"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "publish_exports"),

		GoogleSpreadsheetID:          getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSalesSheet:             getEnv("GOOGLE_SALES_SHEET", "Monthly Sales"),
		GoogleProfitsSheet:           getEnv("GOOGLE_PROFITS_SHEET", "Profits"),
		GoogleProductsSheet:          getEnv("GOOGLE_PRODUCTS_SHEET", "Products"),
		GoogleServiceAccountJSON:     getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile:     getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleApplicationCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		SessionTTL:       getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionCacheSize: getEnvInt("SESSION_CACHE_SIZE", 500),

		PublishBatchSize:  getEnvInt("PUBLISH_BATCH_SIZE", 10),
		PublishInterval:   getEnvDuration("PUBLISH_INTERVAL", 30*time.Second),
		PublishMaxRetries: getEnvInt("PUBLISH_MAX_RETRIES", 3),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate source backend
	if !slices.Contains(validBackends, c.SourceBackend) {
		errors = append(errors, fmt.Sprintf("invalid source backend '%s': must be one of %v", c.SourceBackend, validBackends))
	}

	switch c.SourceBackend {
	case BackendREST:
		if c.SourceBaseURL == "" {
			errors = append(errors, "SOURCE_BASE_URL is required when using rest backend")
		} else if u, err := url.Parse(c.SourceBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid source URL '%s': %v", c.SourceBaseURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid source URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		} else if u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid source URL '%s': missing host", c.SourceBaseURL))
		}
	case BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		errors = append(errors, c.validateGoogleCredentials()...)
	case BackendMemory:
		if c.DataDir != "" {
			if info, err := os.Stat(c.DataDir); err == nil && !info.IsDir() {
				errors = append(errors, fmt.Sprintf("data directory '%s' is not a directory", c.DataDir))
			}
		}
	}

	if c.SourceTimeout < 100*time.Millisecond || c.SourceTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid source timeout %v: must be between 100ms and 5m", c.SourceTimeout))
	}

	// Validate sales field names
	fields := map[string]string{
		"SALES_FIELD_CATEGORY": c.SalesFieldCategory,
		"SALES_FIELD_BUCKET":   c.SalesFieldBucket,
		"SALES_FIELD_AMOUNT":   c.SalesFieldAmount,
		"SALES_FIELD_QUANTITY": c.SalesFieldQuantity,
	}
	seen := make(map[string]string, len(fields))
	for _, key := range []string{"SALES_FIELD_CATEGORY", "SALES_FIELD_BUCKET", "SALES_FIELD_AMOUNT", "SALES_FIELD_QUANTITY"} {
		name := strings.TrimSpace(fields[key])
		if name == "" {
			errors = append(errors, fmt.Sprintf("%s cannot be empty", key))
			continue
		}
		if other, dup := seen[name]; dup {
			errors = append(errors, fmt.Sprintf("%s and %s both map to field '%s'", other, key, name))
		}
		seen[name] = key
	}

	if c.Currency == "" {
		errors = append(errors, "currency cannot be empty")
	}

	if c.PDFFontPath != "" {
		if _, err := os.Stat(c.PDFFontPath); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("PDF font file does not exist: %s", c.PDFFontPath))
		}
	}

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate sessions
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.SessionCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid session cache size %d: must be at least 1", c.SessionCacheSize))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}

	// Validate publish worker configuration
	if c.PublishBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid publish batch size %d: must be at least 1", c.PublishBatchSize))
	} else if c.PublishBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid publish batch size %d: must be at most 1000", c.PublishBatchSize))
	}

	if c.PublishInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid publish interval %v: must be at least 1 second", c.PublishInterval))
	} else if c.PublishInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid publish interval %v: must be at most 24 hours", c.PublishInterval))
	}

	if c.PublishMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid publish max retries %d: must be at least 1", c.PublishMaxRetries))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// PublishingEnabled reports whether grids can be published to Google Sheets.
func (c *Config) PublishingEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func (c *Config) validateGoogleCredentials() []string {
	var errors []string
	hasJSON := c.GoogleServiceAccountJSON != ""
	file := c.GoogleServiceAccountFile
	if file == "" {
		file = c.GoogleApplicationCredentials
	}
	if !hasJSON && file == "" {
		errors = append(errors, "one of GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided for sheets backend")
	}
	if !hasJSON && file != "" {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", file))
		}
	}
	return errors
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
