package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/config"
	"github.com/sells-group/report-kpi/internal/discovery"
	"github.com/sells-group/report-kpi/internal/fetcher"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find new report links and append them to the URL list",
	Long:  "Runs the RSS, HTML and Newsweb sources of every entity in the registry and appends PDF links not yet in the URL list.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		reg, err := discovery.LoadRegistry(cfg.Paths.Entities)
		if err != nil {
			return err
		}
		only, _ := cmd.Flags().GetString("entity")
		entities, err := registryEntities(reg, only)
		if err != nil {
			return err
		}

		added, err := discoverEntities(ctx, entities, cfg.Discovery, newHTTPFetcher(cfg), cfg.Paths.URLList)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d new links appended to %s\n", added, cfg.Paths.URLList)
		return nil
	},
}

func init() {
	discoverCmd.Flags().String("entity", "", "only discover reports for this entity")
	rootCmd.AddCommand(discoverCmd)
}

// registryEntities returns the named entity, or all of them when only is
// empty.
func registryEntities(reg *discovery.Registry, only string) ([]discovery.Entity, error) {
	if only == "" {
		return reg.Entities, nil
	}
	e, ok := reg.Find(only)
	if !ok {
		return nil, eris.Errorf("discover: entity %q is not in the registry", only)
	}
	return []discovery.Entity{e}, nil
}

// discoverEntities collects links from every source of entities and appends
// the unseen ones to the URL list at urlList.
func discoverEntities(ctx context.Context, entities []discovery.Entity, dcfg config.DiscoveryConfig, h *fetcher.HTTPFetcher, urlList string) (int, error) {
	var sources []discovery.Source
	for _, e := range entities {
		sources = append(sources, discovery.BuildSources(e, dcfg, h)...)
	}

	links, err := discovery.Collect(ctx, sources)
	if err != nil {
		return 0, err
	}

	added, err := discovery.AppendURLList(ctx, urlList, discovery.EntriesFromLinks(links))
	if err != nil {
		return 0, err
	}
	zap.L().Info("discover: complete",
		zap.Int("entities", len(entities)),
		zap.Int("links", len(links)),
		zap.Int("added", added),
	)
	return added, nil
}
