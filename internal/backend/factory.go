package backend

import (
	"context"
	"fmt"
	"log/slog"

	"eaccountant/internal/source"
	"eaccountant/internal/source/memory"
	"eaccountant/internal/source/rest"
	"eaccountant/internal/source/sheets"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case RESTBackend:
		return f.createRESTBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createRESTBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := rest.New(config.BaseURL,
		rest.WithToken(config.Token),
		rest.WithFields(config.Fields),
		rest.WithTimeout(config.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize REST client: %w", err)
	}

	publisher, err := f.sheetsPublisher(ctx, config)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Initialized REST backend",
		"base_url", config.BaseURL,
		"publishing", publisher != nil)

	return &BackendResult{Reader: client, Publisher: publisher}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := sheets.New(ctx, sheetsConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &BackendResult{
		Reader:    cli,
		Publisher: cli,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data" // Default directory
	}

	store := memory.NewFromFiles(dataDir, config.Fields)

	publisher, err := f.sheetsPublisher(ctx, config)
	if err != nil {
		return nil, err
	}
	if publisher == nil {
		// Without a spreadsheet the store keeps published grids in memory.
		publisher = store
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{Reader: store, Publisher: publisher}, nil
}

// sheetsPublisher returns a Sheets client for publishing when a spreadsheet
// is configured, and nil otherwise.
func (f *DefaultFactory) sheetsPublisher(ctx context.Context, config Config) (source.Publisher, error) {
	if config.GoogleSpreadsheetID == "" {
		return nil, nil
	}
	cli, err := sheets.New(ctx, sheetsConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets publisher: %w", err)
	}
	return cli, nil
}

func sheetsConfig(config Config) sheets.Config {
	return sheets.Config{
		SpreadsheetID: config.GoogleSpreadsheetID,
		SalesSheet:    config.GoogleSalesSheet,
		ProfitsSheet:  config.GoogleProfitsSheet,
		ProductsSheet: config.GoogleProductsSheet,
		Fields:        config.Fields,
	}
}
