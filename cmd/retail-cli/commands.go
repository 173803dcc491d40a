package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maltedev/retail-session-scraper/internal/app"
	"github.com/maltedev/retail-session-scraper/internal/models"
)

var searchOpts struct {
	sort     string
	page     int
	priceMin float64
	priceMax float64
	limit    int
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the shop and list result tiles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		opts := models.SearchOptions{
			Sort:  searchOpts.sort,
			Page:  searchOpts.page,
			Limit: searchOpts.limit,
		}
		if cmd.Flags().Changed("price-min") {
			opts.PriceMin = &searchOpts.priceMin
		}
		if cmd.Flags().Changed("price-max") {
			opts.PriceMax = &searchOpts.priceMax
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Service.Search(ctx, query, opts)
		})
	},
}

var productCmd = &cobra.Command{
	Use:   "product <id|url>",
	Short: "Fetch the details of one product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Service.GetProductDetails(ctx, args[0])
		})
	},
}

var productsCmd = &cobra.Command{
	Use:   "products <id|url>...",
	Short: "Fetch several products in order, pausing between them",
	Long: `Fetch several products one after another through the same session.

A product that cannot be fetched is reported with its error and the batch
continues with the next one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Service.GetProductsList(ctx, args), nil
		})
	},
}

var filtersCmd = &cobra.Command{
	Use:   "filters [query]",
	Short: "Show sort options and the filter groups offered for a query",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Service.GetFilters(ctx, query), nil
		})
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the department links on the home page",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Service.GetCategories(ctx)
		})
	},
}

var locationCmd = &cobra.Command{
	Use:   "location <city>",
	Short: "Set the delivery location",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		city := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
			result := a.Service.SetLocation(ctx, city)
			if !result.Success {
				return result, fmt.Errorf("could not set location to %q", city)
			}
			return result, nil
		})
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchOpts.sort, "sort", "", "sort option value (see filters)")
	searchCmd.Flags().IntVar(&searchOpts.page, "page", 1, "result page")
	searchCmd.Flags().Float64Var(&searchOpts.priceMin, "price-min", 0, "minimum price")
	searchCmd.Flags().Float64Var(&searchOpts.priceMax, "price-max", 0, "maximum price")
	searchCmd.Flags().IntVar(&searchOpts.limit, "limit", 0, "maximum results to print, 0 for all")
}
