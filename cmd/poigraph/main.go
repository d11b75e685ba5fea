// Command poigraph builds per-category POI cluster graphs and serves routes over them.
package main

import (
    "os"

    "github.com/spf13/cobra"

    "poigraph/internal/buildinfo"
    "poigraph/internal/logging"
)

var (
    configPath string

    rootCmd = &cobra.Command{
        Use:           "poigraph",
        Short:         "Cluster points of interest and answer routes between them",
        SilenceUsage:  true,
        SilenceErrors: true,
    }

    serveCmd = &cobra.Command{
        Use:   "serve",
        Short: "Run the HTTP API, event fan-out and the optional rebuild schedule",
        Args:  cobra.NoArgs,
        RunE:  runServe,
    }

    rebuildCategory string
    rebuildCmd      = &cobra.Command{
        Use:   "rebuild",
        Short: "Rebuild one category (--category) or every configured category",
        Args:  cobra.NoArgs,
        RunE:  runRebuild,
    }

    routeCmd = &cobra.Command{
        Use:   "route [start] [end] [category]",
        Short: "Resolve the route between two POIs of a category",
        Args:  cobra.ExactArgs(3),
        RunE:  runRoute,
    }

    categoriesCmd = &cobra.Command{
        Use:   "categories",
        Short: "List stored categories with their cluster and route counts",
        Args:  cobra.NoArgs,
        RunE:  runCategories,
    }

    versionCmd = &cobra.Command{
        Use:   "version",
        Short: "Print build information",
        Args:  cobra.NoArgs,
        Run: func(cmd *cobra.Command, _ []string) {
            cmd.Println(buildinfo.String())
        },
    }
)

func init() {
    rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $POIGRAPH_CONFIG or ./poigraph.yaml)")
    rebuildCmd.Flags().StringVar(&rebuildCategory, "category", "", "rebuild only this category")
    rootCmd.AddCommand(serveCmd, rebuildCmd, routeCmd, categoriesCmd, versionCmd)
}

func main() {
    if err := rootCmd.Execute(); err != nil {
        logging.Error().Err(err).Msg("poigraph failed")
        os.Exit(1)
    }
}
