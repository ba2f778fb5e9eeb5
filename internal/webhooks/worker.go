// Package webhooks forwards fleet events to an external HTTP endpoint as
// signed JSON posts, retrying failed deliveries with exponential backoff.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fleetnav/internal/events"
)

type Config struct {
	URL    string
	Secret string
	// Types limits forwarding to these event types. Empty forwards all.
	Types       []string
	MaxAttempts int
	Interval    time.Duration
	// MaxPending bounds the retry backlog; the oldest delivery is dropped
	// when it is full.
	MaxPending int
}

type Stats struct {
	Pending   int `json:"pending"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
}

type delivery struct {
	evt      events.Event
	body     []byte
	attempts int
	nextAt   time.Time
}

type Worker struct {
	cfg    Config
	HTTP   *http.Client
	broker events.Broker
	log    *slog.Logger
	now    func() time.Time
	types  map[string]bool

	mu      sync.Mutex
	pending []*delivery
	stats   Stats
}

func NewWorker(b events.Broker, cfg Config, log *slog.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 1000
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		cfg:    cfg,
		HTTP:   &http.Client{Timeout: 5 * time.Second},
		broker: b,
		log:    log,
		now:    time.Now,
		types:  map[string]bool{},
	}
	for _, t := range cfg.Types {
		w.types[t] = true
	}
	return w
}

// Run forwards events until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ch := w.broker.Subscribe(events.Topic)
	defer w.broker.Unsubscribe(events.Topic, ch)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			w.enqueue(evt)
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Pending = len(w.pending)
	return s
}

func (w *Worker) enqueue(evt events.Event) {
	if len(w.types) > 0 && !w.types[evt.Type] {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		w.log.Error("webhook encode", "event", evt.ID, "err", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) >= w.cfg.MaxPending {
		w.pending = w.pending[1:]
		w.stats.Dropped++
	}
	w.pending = append(w.pending, &delivery{evt: evt, body: body, nextAt: w.now()})
}

// processOnce attempts every due delivery once.
func (w *Worker) processOnce(ctx context.Context) {
	now := w.now()
	w.mu.Lock()
	var due, later []*delivery
	for _, d := range w.pending {
		if !d.nextAt.After(now) {
			due = append(due, d)
		} else {
			later = append(later, d)
		}
	}
	w.pending = later
	w.mu.Unlock()

	var retry []*delivery
	for _, d := range due {
		code, err := w.post(ctx, d)
		d.attempts++
		switch {
		case err == nil:
			w.count(func(s *Stats) { s.Delivered++ })
		case d.attempts >= w.cfg.MaxAttempts:
			w.count(func(s *Stats) { s.Failed++ })
			w.log.Warn("webhook delivery failed", "event", d.evt.ID, "type", d.evt.Type, "attempts", d.attempts, "code", code, "err", err)
		default:
			d.nextAt = now.Add(nextBackoff(d.attempts - 1))
			retry = append(retry, d)
		}
	}
	if len(retry) > 0 {
		w.mu.Lock()
		w.pending = append(retry, w.pending...)
		w.mu.Unlock()
	}
}

func (w *Worker) post(ctx context.Context, d *delivery) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(d.body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.evt.Type)
	req.Header.Set("X-Event-Id", d.evt.ID)
	if w.cfg.Secret != "" {
		req.Header.Set("X-Signature", Sign(w.cfg.Secret, w.now(), d.body))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (w *Worker) count(f func(*Stats)) {
	w.mu.Lock()
	f(&w.stats)
	w.mu.Unlock()
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
