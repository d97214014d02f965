package main

import (
	"context"

	"github.com/desertthunder/umx/internal/formatter"
	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/shared"
	"github.com/desertthunder/umx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// userView is the JSON shape of a listed user; the password is always masked.
type userView struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Email    *string `json:"email"`
}

func newUserView(rec models.UserRecord) userView {
	v := userView{Username: rec.Username, Password: shared.MaskSecret(rec.Password)}
	if rec.HasEmail {
		email := rec.Email
		v.Email = &email
	}
	return v
}

// UsersList prints the users of the source or target device.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	side, err := tasks.ParseSide(cmd.String("device"))
	if err != nil {
		return err
	}

	config, err := r.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	engine, err := r.newEngine(config)
	if err != nil {
		return err
	}

	r.logger.Debug("listing users", "device", side)
	records, err := engine.List(ctx, side)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]userView, len(records))
		for i, rec := range records {
			views[i] = newUserView(rec)
		}
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	return r.writePlain("%s", formatter.ExportUsersText(records, false))
}
