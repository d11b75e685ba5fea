package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"

    "github.com/spf13/cobra"

    "poigraph/internal/api"
    "poigraph/internal/auth"
    "poigraph/internal/buildinfo"
    "poigraph/internal/logging"
    "poigraph/internal/pipeline"
    "poigraph/internal/webhooks"
)

func runServe(cmd *cobra.Command, _ []string) error {
    ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    a, err := openApp(ctx)
    if err != nil { return err }
    defer a.close(context.Background())
    log := logging.With("main")

    verifier, err := auth.NewVerifier(a.cfg.Auth)
    if err != nil { return err }
    srv := api.NewServer(api.Deps{
        POIs:      a.pois,
        Graph:     a.graph,
        Resolver:  a.resolver,
        Pipeline:  a.pipeline,
        Broker:    a.broker,
        Auth:      verifier,
        RateRPS:   a.cfg.Server.RateRPS,
        RateBurst: a.cfg.Server.RateBurst,
        Info:      a.info,
    })
    go srv.WatchEvents(ctx)

    if n := webhooks.NewNotifier(a.cfg.Webhooks); n.Enabled() {
        go n.Run(ctx, a.broker)
    }
    if a.cfg.Pipeline.Interval > 0 {
        sched := pipeline.NewScheduler(a.pipeline, a.cfg.Pipeline.Interval)
        sched.Start(ctx, true)
        defer sched.Stop()
    }

    hs := &http.Server{
        Addr:              a.cfg.Server.ListenAddr(),
        Handler:           srv.Handler(),
        ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
    }
    errc := make(chan error, 1)
    go func() {
        log.Info().Str("addr", hs.Addr).Str("version", buildinfo.Version).Msg("api listening")
        errc <- hs.ListenAndServe()
    }()

    select {
    case err := <-errc:
        if !errors.Is(err, http.ErrServerClosed) { return err }
        return nil
    case <-ctx.Done():
    }
    log.Info().Msg("shutting down")
    sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
    defer cancel()
    return hs.Shutdown(sctx)
}
