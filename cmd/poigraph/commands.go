package main

import (
    "encoding/json"
    "os"

    "github.com/spf13/cobra"
)

func runRebuild(cmd *cobra.Command, _ []string) error {
    a, err := openApp(cmd.Context())
    if err != nil { return err }
    defer a.close(cmd.Context())

    if rebuildCategory != "" {
        res, err := a.pipeline.RebuildCategory(cmd.Context(), rebuildCategory)
        if err != nil { return err }
        return printJSON(res)
    }
    results, err := a.pipeline.RebuildAll(cmd.Context())
    if perr := printJSON(results); perr != nil { return perr }
    return err
}

func runRoute(cmd *cobra.Command, args []string) error {
    a, err := openApp(cmd.Context())
    if err != nil { return err }
    defer a.close(cmd.Context())

    res, err := a.resolver.Route(cmd.Context(), args[0], args[1], args[2])
    if err != nil { return err }
    return printJSON(res)
}

func runCategories(cmd *cobra.Command, _ []string) error {
    a, err := openApp(cmd.Context())
    if err != nil { return err }
    defer a.close(cmd.Context())

    stats, err := a.graph.CategoryStats(cmd.Context())
    if err != nil { return err }
    return printJSON(stats)
}

func printJSON(v any) error {
    enc := json.NewEncoder(os.Stdout)
    enc.SetIndent("", "  ")
    return enc.Encode(v)
}
