package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/refill/internal/domain/models"
	"github.com/mamadbah2/refill/internal/offline/cache"
	"github.com/mamadbah2/refill/pkg/clients/refill"
)

// NewVisitCommand creates the visit command group.
func NewVisitCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Start, inspect, annotate and submit visits",
	}

	cmd.AddCommand(newVisitStartCommand(app))
	cmd.AddCommand(newVisitShowCommand(app))
	cmd.AddCommand(newVisitNoteCommand(app))
	cmd.AddCommand(newVisitSubmitCommand(app))

	return cmd
}

func newVisitStartCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "start <location-id>",
		Short: "Start or resume the open visit at a location",
		Long: `Start or resume the open visit at a location. Starting is idempotent:
if an open visit already exists for you at this location, it is returned
instead of a duplicate. Starting requires connectivity, because the visit id
anchors everything recorded afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Cfg.RequireRep(); err != nil {
				return err
			}
			ctx := cmd.Context()

			visit, err := app.Client.StartVisit(ctx, args[0])
			if err != nil {
				return fmt.Errorf("start visit (connectivity is required to start): %w", err)
			}

			_ = app.Cache.Put(ctx, cache.VisitKey(visit.ID.Hex()), refill.VisitDetail{Visit: *visit})
			fmt.Fprintf(cmd.OutOrStdout(), "visit %s %s at location %s (started %s)\n",
				visit.ID.Hex(), visit.Status, visit.Location.Hex(), visit.StartedAt.Format("2006-01-02 15:04"))
			return nil
		},
	}
}

func newVisitShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <visit-id>",
		Short: "Show a visit and its box coverage",
		Long: `Show a visit and its box coverage. Served from the offline cache when
the server is unreachable, so the last known state stays visible in the
field.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			detail, err := cache.ReadThrough(ctx, app.Cache, cache.VisitKey(id),
				func(ctx context.Context) (refill.VisitDetail, error) {
					d, err := app.Client.GetVisit(ctx, id)
					if err != nil {
						return refill.VisitDetail{}, err
					}
					return *d, nil
				})
			if err != nil {
				return err
			}

			v := detail.Visit
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "visit %s  status=%s  started=%s\n",
				v.ID.Hex(), v.Status, v.StartedAt.Format("2006-01-02 15:04"))
			if v.Status == models.VisitSubmitted && v.SubmittedAt != nil {
				fmt.Fprintf(out, "outcome=%s  submitted=%s\n", v.Outcome, v.SubmittedAt.Format("2006-01-02 15:04"))
			}
			if v.Note != "" {
				fmt.Fprintf(out, "note: %s\n", v.Note)
			}
			for _, b := range detail.Boxes {
				mark := " "
				if b.Covered {
					mark = "x"
				}
				fmt.Fprintf(out, "  [%s] %s (%s)\n", mark, b.Label, b.Size)
			}
			return nil
		},
	}
}

func newVisitNoteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "note <visit-id> <text>...",
		Short: "Set the visit note, queueing the change when offline",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			note := strings.Join(args[1:], " ")

			err := app.Client.SetNote(ctx, id, note)
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "note saved")
				return nil
			}
			if depth, queued := app.offlineOrQueue(ctx, err,
				"PATCH", fmt.Sprintf("/api/visits/%s/note", id),
				map[string]string{"note": note}); queued {
				fmt.Fprintf(cmd.OutOrStdout(), "offline: %d change(s) queued\n", depth)
				return nil
			}
			return err
		},
	}
}

func newVisitSubmitCommand(app *App) *cobra.Command {
	var outcome string
	var note string

	cmd := &cobra.Command{
		Use:   "submit <visit-id>",
		Short: "Submit a visit with an outcome",
		Long: `Submit a visit. The "completed" outcome requires every box at the
location to have a recorded delivery for this visit; the server rejects it
otherwise and lists the missing boxes. Other outcomes record why restocking
did not finish and skip the coverage check.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			out, err := models.ParseOutcome(outcome)
			if err != nil {
				return err
			}
			var notePtr *string
			if note != "" {
				notePtr = &note
			}

			visit, err := app.Client.SubmitVisit(ctx, id, out, notePtr)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "visit %s submitted: %s\n", visit.ID.Hex(), visit.Outcome)
				return nil
			}

			var apiErr *refill.APIError
			if errors.As(err, &apiErr) && len(apiErr.MissingBoxes) > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), apiErr.Message)
				for _, box := range apiErr.MissingBoxes {
					fmt.Fprintf(cmd.ErrOrStderr(), "  missing: %s (%s)\n", box.Label, box.ID)
				}
				return fmt.Errorf("submit rejected: coverage incomplete")
			}

			body := map[string]any{"outcome": out}
			if notePtr != nil {
				body["note"] = *notePtr
			}
			if depth, queued := app.offlineOrQueue(ctx, err,
				"POST", fmt.Sprintf("/api/visits/%s/submit", id), body); queued {
				fmt.Fprintf(cmd.OutOrStdout(), "offline: %d change(s) queued\n", depth)
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&outcome, "outcome", string(models.OutcomeCompleted), "visit outcome: completed|partial|no_access|skipped")
	cmd.Flags().StringVar(&note, "note", "", "optional visit note, saved with the submission")

	return cmd
}
