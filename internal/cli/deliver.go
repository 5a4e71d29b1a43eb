package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/refill/internal/domain/models"
	"github.com/mamadbah2/refill/internal/offline/cache"
	"github.com/mamadbah2/refill/internal/pricing"
	"github.com/mamadbah2/refill/pkg/clients/refill"
)

// NewDeliverCommand creates the deliver command: record the restock of one
// box, online or queued.
func NewDeliverCommand(app *App) *cobra.Command {
	var location, box, visit, repName string
	var rawLines []string

	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Record a box restock with priced line items",
		Long: `Record the restock of one box. Each --line is item-id:quantity with an
optional :packaging suffix (each|case); packaging defaults to the item's
catalog mode. Offline the delivery is queued with a local price estimate;
the server reprices authoritatively on replay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			lines, err := parseLineFlags(rawLines)
			if err != nil {
				return err
			}

			req := refill.DeliveryRequest{
				Location: location,
				Box:      box,
				Visit:    visit,
				RepName:  repName,
				Lines:    lines,
			}

			created, err := app.Client.CreateDelivery(ctx, req)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "delivery %s recorded, total %.2f\n", created.ID.Hex(), created.Total)
				return nil
			}

			depth, queued := app.offlineOrQueue(ctx, err, "POST", "/api/deliveries", req)
			if !queued {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "offline: %d change(s) queued\n", depth)
			if total, ok := estimateTotal(ctx, app, lines); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "estimated total %.2f (server is authoritative)\n", total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "location id (required)")
	cmd.Flags().StringVar(&box, "box", "", "box id (required)")
	cmd.Flags().StringVar(&visit, "visit", "", "visit id; omit for a walk-in restock")
	cmd.Flags().StringVar(&repName, "rep-name", "", "free-text rep name recorded on the delivery")
	cmd.Flags().StringArrayVar(&rawLines, "line", nil, "cart line item-id:quantity[:packaging]; repeatable")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("box")
	_ = cmd.MarkFlagRequired("line")

	return cmd
}

func parseLineFlags(raw []string) ([]refill.DeliveryLine, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --line is required")
	}
	lines := make([]refill.DeliveryLine, 0, len(raw))
	for _, r := range raw {
		parts := strings.Split(r, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid --line %q: want item-id:quantity[:packaging]", r)
		}
		qty, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in --line %q: %w", r, err)
		}
		line := refill.DeliveryLine{Item: parts[0], Quantity: qty}
		if len(parts) == 3 {
			p, err := models.ParsePackaging(parts[2])
			if err != nil {
				return nil, fmt.Errorf("invalid --line %q: %w", r, err)
			}
			line.Packaging = string(p)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// estimateTotal prices the cart against the cached catalog with the same
// pricing engine the server runs. Items missing from the cache make the
// estimate impossible, not wrong: report nothing in that case.
func estimateTotal(ctx context.Context, app *App, lines []refill.DeliveryLine) (float64, bool) {
	var items []models.Item
	if err := app.Cache.Get(ctx, cache.KeyItems, &items); err != nil {
		return 0, false
	}
	byID := make(map[string]models.Item, len(items))
	for _, it := range items {
		byID[it.ID.Hex()] = it
	}

	reqs := make([]pricing.LineRequest, 0, len(lines))
	for _, l := range lines {
		item, ok := byID[l.Item]
		if !ok {
			return 0, false
		}
		reqs = append(reqs, pricing.LineRequest{
			Item:      item,
			Quantity:  l.Quantity,
			Packaging: models.Packaging(l.Packaging),
		})
	}

	_, _, total, err := pricing.PriceLines(reqs)
	if err != nil {
		return 0, false
	}
	return total, true
}
