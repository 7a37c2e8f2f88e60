package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/placefinder/refresh"
)

func refreshCommand(c *cli.Context) error {
	cfg := &refresh.Config{
		BatchSize:      c.Int("batch-size"),
		Workers:        c.Int("workers"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	refresher, err := db.NewRefresher(cfg, c.App.ErrWriter)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n\n", c.String("db"))
	if _, err := refresher.Run(c.Context); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	return nil
}
