// Command audit-export writes the audit workbook for the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-attest/internal/config"
	"github.com/garyjia/expense-attest/internal/container"
	"github.com/garyjia/expense-attest/internal/domain/entity"
	"github.com/garyjia/expense-attest/internal/export"
	"github.com/garyjia/expense-attest/pkg/utils"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
		name       = flag.String("name", "", "workbook file name inside export.output_dir (default audit-<timestamp>.xlsx)")
		status     = flag.String("status", "", "only export reports in this status")
		director   = flag.String("as", "audit-export", "identity recorded as the exporting director")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: "stderr",
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	filter := entity.ReportFilter{Status: entity.Status(*status)}
	if *status != "" && !filter.Status.IsValid() {
		logger.Error("Unknown status filter", zap.String("status", *status))
		os.Exit(2)
	}

	if *name == "" {
		*name = export.FileName(time.Now())
	}

	path, err := run(cfg, logger, entity.Actor{Identity: *director, Role: entity.RoleDirector}, filter, *name)
	if err != nil {
		logger.Error("Audit export failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	fmt.Println(path)
}

func run(cfg *config.Config, logger *zap.Logger, actor entity.Actor, filter entity.ReportFilter, name string) (string, error) {
	ctx := context.Background()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return "", err
	}
	if err := c.Start(ctx); err != nil {
		return "", err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	path, summary, err := c.Services().Exporter.Archive(ctx, actor, filter, c.Artifacts(), name)
	if err != nil {
		return "", err
	}

	logger.Info("Audit export complete",
		zap.String("path", path),
		zap.Int("reports", summary.Reports),
		zap.String("total", summary.Total.String()),
		zap.Int("verification_failures", summary.Failures))
	return path, nil
}
