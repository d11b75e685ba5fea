// Package webhooks posts signed rebuild notifications to downstream HTTP endpoints.
package webhooks

import (
    "bytes"
    "context"
    "crypto/hmac"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "poigraph/internal/events"
    "poigraph/internal/logging"
    "poigraph/internal/metrics"
)

type Config struct {
    URLs        []string      `koanf:"urls" validate:"dive,url"`
    Secret      string        `koanf:"secret"`
    MaxAttempts int           `koanf:"max_attempts" validate:"gte=1"`
    Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
}

func DefaultConfig() Config {
    return Config{MaxAttempts: 5, Timeout: 5 * time.Second}
}

// Notifier delivers every rebuild event to each configured URL, retrying
// with exponential backoff up to MaxAttempts.
type Notifier struct {
    urls        []string
    secret      string
    http        *http.Client
    maxAttempts int
    backoff     func(attempt int) time.Duration
    log         zerolog.Logger
}

func NewNotifier(cfg Config) *Notifier {
    def := DefaultConfig()
    if cfg.MaxAttempts <= 0 { cfg.MaxAttempts = def.MaxAttempts }
    if cfg.Timeout <= 0 { cfg.Timeout = def.Timeout }
    return &Notifier{
        urls:        cfg.URLs,
        secret:      cfg.Secret,
        http:        &http.Client{Timeout: cfg.Timeout},
        maxAttempts: cfg.MaxAttempts,
        backoff:     nextBackoff,
        log:         logging.With("webhooks"),
    }
}

// Enabled reports whether any endpoint is configured.
func (n *Notifier) Enabled() bool { return len(n.urls) > 0 }

// Run forwards events from b until ctx is done or the broker closes.
func (n *Notifier) Run(ctx context.Context, b events.Broker) {
    ch := b.Subscribe(events.All)
    defer b.Unsubscribe(events.All, ch)
    for {
        select {
        case <-ctx.Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            if err := n.Deliver(ctx, evt); err != nil {
                n.log.Error().Err(err).Str("category", evt.Category).Msg("webhook delivery failed")
            }
        }
    }
}

// Deliver posts evt to every URL. Failures on one URL do not stop the others.
func (n *Notifier) Deliver(ctx context.Context, evt events.RebuildEvent) error {
    if evt.Type == "" { evt.Type = events.TypeCategoryRebuilt }
    body, err := json.Marshal(evt)
    if err != nil { return err }
    var errs []error
    for _, url := range n.urls {
        if err := n.deliverOne(ctx, url, evt.Type, body); err != nil {
            errs = append(errs, fmt.Errorf("%s: %w", url, err))
        }
    }
    return errors.Join(errs...)
}

func (n *Notifier) deliverOne(ctx context.Context, url, eventType string, body []byte) error {
    var lastErr error
    for attempt := 0; attempt < n.maxAttempts; attempt++ {
        if attempt > 0 {
            metrics.WebhookDeliveries.WithLabelValues("retry").Inc()
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(n.backoff(attempt - 1)):
            }
        }
        start := time.Now()
        code, err := n.post(ctx, url, eventType, body)
        n.log.Debug().Str("url", url).Int("code", code).Int("attempt", attempt+1).
            Dur("latency", time.Since(start)).Err(err).Msg("webhook attempt")
        if err == nil {
            metrics.WebhookDeliveries.WithLabelValues("ok").Inc()
            return nil
        }
        lastErr = err
    }
    metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
    return fmt.Errorf("after %d attempts: %w", n.maxAttempts, lastErr)
}

func (n *Notifier) post(ctx context.Context, url, eventType string, body []byte) (int, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
    if err != nil { return 0, err }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Event-Type", eventType)
    if n.secret != "" {
        req.Header.Set("X-Signature", signaturePrefix+SignHMAC(n.secret, body))
    }
    resp, err := n.http.Do(req)
    if err != nil { return 0, err }
    _ = resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
    }
    return resp.StatusCode, nil
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}

// SignHMAC returns lowercase hex of HMAC-SHA256 over body.
func SignHMAC(secret string, body []byte) string {
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write(body)
    return hex.EncodeToString(mac.Sum(nil))
}

// signaturePrefix names the digest in the X-Signature header.
const signaturePrefix = "sha256="

// VerifyHMAC checks a hex signature produced by SignHMAC, with or without
// the header's "sha256=" prefix.
func VerifyHMAC(secret string, body []byte, provided string) bool {
    got, err := hex.DecodeString(strings.TrimPrefix(provided, signaturePrefix))
    if err != nil { return false }
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write(body)
    return hmac.Equal(mac.Sum(nil), got)
}
