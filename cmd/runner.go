package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/umx/internal/device"
	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/shared"
	"github.com/desertthunder/umx/internal/tasks"
	"github.com/desertthunder/umx/internal/ui"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	open       tasks.Opener
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Open       tasks.Opener // device sessions; defaults to [tasks.OpenDevice]
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = defaultConfigPath
	}
	if opts.Open == nil {
		opts.Open = tasks.OpenDevice
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		open:       opts.Open,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, migrateCommand, usersCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// resolveConfig loads the --config file when present, applies UMX_* environment
// overrides and sets the log level.
//
// A missing file falls back to the runner's config unless the path was given explicitly.
func (r *Runner) resolveConfig(cmd *cli.Command) (*shared.Config, error) {
	path := cmd.String("config")
	if path == "" {
		path = r.configPath
	}

	config := r.config
	if _, err := os.Stat(path); err == nil {
		loaded, err := shared.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else if cmd.IsSet("config") {
		return nil, fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
	}

	if err := shared.ApplyEnv(config); err != nil {
		return nil, err
	}

	level, err := shared.ParseLogLevel(config.Log.Level)
	if err != nil {
		return nil, err
	}
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)

	r.config = config
	return config, nil
}

// newEngine builds a [tasks.MigrationEngine] from the device, timeout and schema settings.
func (r *Runner) newEngine(config *shared.Config) (*tasks.MigrationEngine, error) {
	dial, err := config.DialTimeout()
	if err != nil {
		return nil, err
	}
	call, err := config.CallTimeout()
	if err != nil {
		return nil, err
	}

	source := models.SchemaFromConfig(config.Schema.Source, models.SourceSchemaV6())
	if err := source.Require(models.FieldUsername, models.FieldPassword); err != nil {
		return nil, fmt.Errorf("source schema: %w", err)
	}
	target := models.SchemaFromConfig(config.Schema.Target, models.TargetSchemaV7())
	if err := target.Require(models.FieldUsername, models.FieldPassword); err != nil {
		return nil, fmt.Errorf("target schema: %w", err)
	}

	cfg := tasks.EngineConfig{
		Source:       deviceConfig(config.Source, dial, call),
		Target:       deviceConfig(config.Target, dial, call),
		SourceSchema: source,
		TargetSchema: target,
	}
	logger := shared.WithLogger(r.logger, "source", cfg.Source.HostPort(), "target", cfg.Target.HostPort())
	return tasks.NewMigrationEngine(cfg, r.open, logger), nil
}

func deviceConfig(rc shared.RouterConfig, dial, call time.Duration) device.Config {
	return device.Config{
		Address:     rc.Address,
		Port:        rc.Port,
		Username:    rc.Username,
		Password:    rc.Password,
		TLS:         rc.TLS,
		Insecure:    rc.Insecure,
		DialTimeout: dial,
		CallTimeout: call,
	}
}

// openDatabase opens the history database and applies pending migrations.
func (r *Runner) openDatabase(config *shared.Config) (*sql.DB, error) {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// renderProgress drains a progress channel until it is closed and returns a channel
// that closes once every update has been written.
func (r *Runner) renderProgress(progress <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writeUpdate(update)
		}
	}()
	return done
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", ui.Title(title))
	r.writePlain("═══════════════════════════════════════\n")
}
