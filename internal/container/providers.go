// Package container provides dependency wiring and lifecycle management for
// the expense approval service.
package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/expense-attest/internal/application/port"
	"github.com/garyjia/expense-attest/internal/application/service"
	"github.com/garyjia/expense-attest/internal/config"
	"github.com/garyjia/expense-attest/internal/domain/signature"
	"github.com/garyjia/expense-attest/internal/export"
	"github.com/garyjia/expense-attest/internal/infrastructure/persistence/bolt"
	"github.com/garyjia/expense-attest/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-attest/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-attest/internal/infrastructure/storage"
	"github.com/garyjia/expense-attest/pkg/database"
)

// StoreBundle holds the persistence components of one driver
type StoreBundle struct {
	Reports   port.ReportStore
	History   port.HistoryRepository
	TxManager port.TransactionManager

	ping  func(ctx context.Context) error
	close func() error
}

// ServiceBundle groups all application services
type ServiceBundle struct {
	Approval     service.ApprovalService
	Verification service.VerificationService
	Exporter     *export.Exporter
}

// ProvideStore opens the configured storage driver. SQLite migrations run
// before the bundle is returned.
func ProvideStore(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	switch cfg.Driver {
	case config.DriverBolt:
		return provideBolt(cfg, logger)
	case config.DriverSQLite, "":
		return provideSQLite(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func provideSQLite(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	sqlDB, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(sqlDB, logger).RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db := sqlite.NewDB(sqlDB.DB, logger)
	return &StoreBundle{
		Reports:   repository.NewReportRepository(db, logger),
		History:   repository.NewHistoryRepository(db, logger),
		TxManager: db,
		ping:      sqlDB.PingContext,
		close:     sqlDB.Close,
	}, nil
}

func provideBolt(cfg *config.DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	store, err := bolt.Open(cfg.Path, cfg.ConnectTimeout, logger)
	if err != nil {
		return nil, err
	}

	return &StoreBundle{
		Reports:   store,
		History:   store.HistoryRepository(),
		TxManager: store,
		ping:      store.Ping,
		close:     store.Close,
	}, nil
}

// ServiceDeps holds dependencies for creating services
type ServiceDeps struct {
	Store   *StoreBundle
	Engine  port.SignatureEngine
	Signing config.SigningConfig
	Export  config.ExportConfig
	Logger  *zap.Logger
}

// ProvideServices creates all application services
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Store == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	engine := deps.Engine
	if engine == nil {
		engine = signature.NewEngine()
	}
	serviceLogger := NewZapLogger(deps.Logger)

	verifier := service.NewVerificationService(deps.Store.Reports, engine, serviceLogger)
	approval := service.NewApprovalService(
		deps.Store.Reports,
		deps.Store.History,
		deps.Store.TxManager,
		engine,
		verifier,
		service.ApprovalConfig{
			AcceptClientSignatures: deps.Signing.AcceptClientSignatures,
			VerifyOnIngest:         deps.Signing.VerifyOnIngest,
		},
		serviceLogger,
	)
	exporter := export.NewExporter(approval, verifier, export.Config{SheetName: deps.Export.SheetName}, deps.Logger)

	return &ServiceBundle{
		Approval:     approval,
		Verification: verifier,
		Exporter:     exporter,
	}, nil
}

// ProvideArtifactStore creates the store audit workbooks are archived in
func ProvideArtifactStore(cfg *config.ExportConfig, logger *zap.Logger) (port.ArtifactStore, error) {
	if cfg == nil || cfg.OutputDir == "" {
		return nil, fmt.Errorf("export output directory is required")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return storage.NewLocalFileStorage(cfg.OutputDir, logger), nil
}
