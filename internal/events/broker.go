// Package events fans out category rebuild notifications.
package events

import (
    "context"
    "sync"
    "time"
)

// TypeCategoryRebuilt is the only event type the pipeline emits.
const TypeCategoryRebuilt = "category.rebuilt"

// RebuildEvent announces that a category's graph generation was replaced.
type RebuildEvent struct {
    Type       string    `json:"type"`
    Category   string    `json:"category"`
    Generation string    `json:"generation"`
    Clusters   int       `json:"clusters"`
    Edges      int       `json:"edges"`
    At         time.Time `json:"at"`
}

// All subscribes to every category.
const All = ""

// Broker delivers rebuild events to subscribers of a category or of All.
type Broker interface {
    Subscribe(category string) chan RebuildEvent
    Unsubscribe(category string, ch chan RebuildEvent)
    Publish(ctx context.Context, evt RebuildEvent) error
    Close() error
}

// Memory is an in-process broker. Slow subscribers drop events rather than block.
type Memory struct {
    mu   sync.Mutex
    subs map[string]map[chan RebuildEvent]struct{} // category -> set of channels
}

func NewMemory() *Memory {
    return &Memory{subs: map[string]map[chan RebuildEvent]struct{}{}}
}

func (b *Memory) Subscribe(category string) chan RebuildEvent {
    ch := make(chan RebuildEvent, 8)
    b.mu.Lock()
    if b.subs[category] == nil { b.subs[category] = map[chan RebuildEvent]struct{}{} }
    b.subs[category][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Memory) Unsubscribe(category string, ch chan RebuildEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[category]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, category) }
    close(ch)
}

func (b *Memory) Publish(_ context.Context, evt RebuildEvent) error {
    if evt.Type == "" { evt.Type = TypeCategoryRebuilt }
    b.mu.Lock()
    defer b.mu.Unlock()
    deliver(b.subs[evt.Category], evt)
    if evt.Category != All {
        deliver(b.subs[All], evt)
    }
    return nil
}

func deliver(m map[chan RebuildEvent]struct{}, evt RebuildEvent) {
    for ch := range m {
        select { case ch <- evt: default: }
    }
}

// Close closes every subscriber channel.
func (b *Memory) Close() error {
    b.mu.Lock()
    defer b.mu.Unlock()
    for cat, m := range b.subs {
        for ch := range m {
            close(ch)
        }
        delete(b.subs, cat)
    }
    return nil
}
