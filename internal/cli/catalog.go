package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/refill/internal/domain/models"
	"github.com/mamadbah2/refill/internal/offline/cache"
)

// NewCatalogCommand creates the catalog command group: read-only views of
// items, locations and boxes, served from the offline cache when needed.
func NewCatalogCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse items, locations and boxes",
	}

	cmd.AddCommand(newCatalogItemsCommand(app))
	cmd.AddCommand(newCatalogLocationsCommand(app))
	cmd.AddCommand(newCatalogBoxesCommand(app))

	return cmd
}

func newCatalogItemsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "items",
		Short: "List the item catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := cache.ReadThrough(cmd.Context(), app.Cache, cache.KeyItems,
				func(ctx context.Context) ([]models.Item, error) {
					return app.Client.ListItems(ctx)
				})
			if err != nil {
				return err
			}
			for _, it := range items {
				status := ""
				if !it.Active {
					status = "  (inactive)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-30s %s %.2f/pack%s\n",
					it.ID.Hex(), it.Name, it.Packaging, it.PricePerPack, status)
			}
			return nil
		},
	}
}

func newCatalogLocationsCommand(app *App) *cobra.Command {
	var q string

	cmd := &cobra.Command{
		Use:   "locations",
		Short: "List locations",
		Long: `List locations. Without --q the full list is cached for offline use; a
--q name search always needs the server, since a filtered result has no
cached analog and a stale one would be wrong.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var locations []models.Location
			var err error
			if q != "" {
				locations, err = app.Client.ListLocations(ctx, q)
			} else {
				locations, err = cache.ReadThrough(ctx, app.Cache, cache.KeyLocations,
					func(ctx context.Context) ([]models.Location, error) {
						return app.Client.ListLocations(ctx, "")
					})
			}
			if err != nil {
				return err
			}
			for _, loc := range locations {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s, %s\n", loc.ID.Hex(), loc.Name, loc.Address.City)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&q, "q", "", "name search (requires connectivity)")

	return cmd
}

func newCatalogBoxesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "boxes <location-id>",
		Short: "List the boxes at a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locationID := args[0]
			boxes, err := cache.ReadThrough(cmd.Context(), app.Cache, cache.BoxesKey(locationID),
				func(ctx context.Context) ([]models.Box, error) {
					return app.Client.ListBoxes(ctx, locationID)
				})
			if err != nil {
				return err
			}
			for _, b := range boxes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s size %s\n", b.ID.Hex(), b.Label, b.Size)
			}
			return nil
		},
	}
}
