package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/umx/internal/shared"
	"github.com/desertthunder/umx/internal/ui"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the embedded config template to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("%s\n", ui.OK("✓ Config written to "+path))
	r.writePlainln("Next steps:")
	r.writePlain("1. Set the source and target addresses and usernames in %s\n", path)
	r.writePlain("2. Export UMX_SOURCE_PASSWORD and UMX_TARGET_PASSWORD, or set them in the file\n")
	r.writePlain("3. Run 'umx migrate run --dry-run' to check the batch\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "err", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
		}
	}

	config, err := r.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if config.Database.Path == "" {
		return fmt.Errorf("%w: database.path is empty", shared.ErrInvalidConfig)
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := r.openDatabase(config)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back most recent migration")
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
	}

	versions, err := shared.AppliedVersions(db)
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlain("%s\n", ui.OK(fmt.Sprintf("✓ Database ready at %s (%d migrations applied)", config.Database.Path, len(versions))))
	return nil
}
