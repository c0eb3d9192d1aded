package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vexmx/avotex/internal/capture"
	"github.com/vexmx/avotex/internal/ml"
	"github.com/vexmx/avotex/internal/models"
)

// cliIdentity is the grower named on the command line.
type cliIdentity struct {
	user models.User
}

func (i cliIdentity) CurrentUser() (models.User, bool) {
	return i.user, i.user.ID != ""
}

// printNotifier writes notifications as plain lines.
type printNotifier struct {
	w io.Writer
}

func (n printNotifier) Notify(note models.Notification) {
	if note.Detail != "" {
		fmt.Fprintf(n.w, "%s: %s\n", note.Title, note.Detail)
		return
	}
	fmt.Fprintln(n.w, note.Title)
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var userID, email string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Diagnose one image and store the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd.ErrOrStderr())

			db, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			defer db.Close()

			model, err := ml.NewModel(ml.SettingsFromConfig(cfg), logger, nil)
			if err != nil {
				return fmt.Errorf("failed to create ML model: %w", err)
			}
			defer model.Close()
			if err := model.Load(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load ML model: %w", err)
			}

			pipeline, err := capture.New(capture.Options{
				Camera:     capture.FileCamera{Path: args[0]},
				Classifier: model,
				Store:      db,
				Identity:   cliIdentity{user: models.User{ID: strings.TrimSpace(userID), Email: email}},
				Notifier:   printNotifier{w: cmd.ErrOrStderr()},
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			defer pipeline.Close()

			out, err := pipeline.Trigger(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				if err := writeJSON(w, out); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(w, out.Display)
			}
			if out.State == capture.StateFailed {
				return fmt.Errorf("scan failed: %s", out.Prediction.Label)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id the scan is stored for (not stored when empty)")
	cmd.Flags().StringVar(&email, "email", "", "User e-mail stored with the scan")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the outcome as JSON")
	return cmd
}
