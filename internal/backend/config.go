package backend

import (
	"fmt"

	"eaccountant/internal/config"
	"eaccountant/internal/source"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.SourceBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.SourceBackend)
	}

	return Config{
		Type: backendType,

		BaseURL: appConfig.SourceBaseURL,
		Token:   appConfig.SourceToken,
		Timeout: appConfig.SourceTimeout,

		Fields: source.FieldMap{
			Category: appConfig.SalesFieldCategory,
			Bucket:   appConfig.SalesFieldBucket,
			Amount:   appConfig.SalesFieldAmount,
			Quantity: appConfig.SalesFieldQuantity,
		},

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleSalesSheet:    appConfig.GoogleSalesSheet,
		GoogleProfitsSheet:  appConfig.GoogleProfitsSheet,
		GoogleProductsSheet: appConfig.GoogleProductsSheet,

		DataDirectory: appConfig.DataDir,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case RESTBackend:
		if c.BaseURL == "" {
			return fmt.Errorf("base URL is required for rest backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
	case MemoryBackend:
		// DataDirectory defaults to "data"
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{RESTBackend, SheetsBackend, MemoryBackend}
}
