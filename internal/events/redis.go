package events

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"

    "poigraph/internal/logging"
)

// Redis implements Broker over Redis pub/sub, one channel per category.
type Redis struct {
    rdb    *redis.Client
    prefix string

    mu   sync.Mutex
    subs map[chan RebuildEvent]*redis.PubSub
}

// NewRedis connects to url and verifies the server answers.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, fmt.Errorf("parse redis url: %w", err) }
    rdb := redis.NewClient(opt)
    pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := rdb.Ping(pctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("ping redis: %w", err)
    }
    return newRedis(rdb, prefix), nil
}

func newRedis(rdb *redis.Client, prefix string) *Redis {
    return &Redis{rdb: rdb, prefix: prefix, subs: map[chan RebuildEvent]*redis.PubSub{}}
}

func (b *Redis) Subscribe(category string) chan RebuildEvent {
    ch := make(chan RebuildEvent, 16)
    ctx := context.Background()
    var ps *redis.PubSub
    if category == All {
        ps = b.rdb.PSubscribe(ctx, b.chanName("*"))
    } else {
        ps = b.rdb.Subscribe(ctx, b.chanName(category))
    }
    // wait for the subscription confirmation
    if _, err := ps.Receive(ctx); err != nil {
        logging.Warn().Err(err).Str("category", category).Msg("redis subscribe")
    }
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()

    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt RebuildEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
                logging.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed event")
                continue
            }
            select { case ch <- evt: default: }
        }
    }()
    return ch
}

// Unsubscribe closes the underlying subscription; ch is closed once it drains.
func (b *Redis) Unsubscribe(_ string, ch chan RebuildEvent) {
    b.mu.Lock()
    ps, ok := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ok { _ = ps.Close() }
}

func (b *Redis) Publish(ctx context.Context, evt RebuildEvent) error {
    if evt.Type == "" { evt.Type = TypeCategoryRebuilt }
    data, err := json.Marshal(evt)
    if err != nil { return err }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := b.rdb.Publish(ctx, b.chanName(evt.Category), data).Err(); err != nil {
        return fmt.Errorf("publish %s: %w", evt.Category, err)
    }
    return nil
}

func (b *Redis) Close() error {
    b.mu.Lock()
    for ch, ps := range b.subs {
        _ = ps.Close()
        delete(b.subs, ch)
    }
    b.mu.Unlock()
    return b.rdb.Close()
}

func (b *Redis) chanName(category string) string { return b.prefix + ":" + category }
