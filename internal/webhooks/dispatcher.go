package webhooks

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/braidhq/engine/internal/events"
)

// A delivery is retried this many times before it is abandoned.
const maxAttempts = 3

type delivery struct {
	endpoint Endpoint
	event    *events.CloudEvent
	body     []byte
	attempt  int
}

// Dispatcher fans engine events out to matching endpoints through a
// bounded worker pool. A full queue drops deliveries; webhooks are a
// notification surface, not a durable log.
type Dispatcher struct {
	registry *Registry
	client   *http.Client
	queue    chan delivery
	logger   *slog.Logger

	// backoff maps the attempt just failed to the wait before the next.
	backoff func(attempt int) time.Duration

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher starts the worker pool. workers defaults to 4 when
// non-positive.
func NewDispatcher(registry *Registry, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		registry: registry,
		client:   &http.Client{Timeout: 10 * time.Second},
		queue:    make(chan delivery, 256),
		logger:   logger.With("component", "webhooks"),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Run drains a subscription channel into the dispatcher until the
// channel closes. Pair it with Bus.Subscribe:
//
//	go dispatcher.Run(bus.Subscribe())
func (d *Dispatcher) Run(ch <-chan *events.CloudEvent) {
	for event := range ch {
		d.Fanout(event)
	}
}

// Fanout enqueues one delivery per endpoint matching the event.
func (d *Dispatcher) Fanout(event *events.CloudEvent) {
	matching := d.registry.Matching(event.Type, event.TenantID)
	if len(matching) == 0 {
		return
	}
	body, err := event.JSON()
	if err != nil {
		d.logger.Error("event not serializable", "event", event.ID, "error", err)
		return
	}
	for _, ep := range matching {
		select {
		case d.queue <- delivery{endpoint: ep, event: event, body: body, attempt: 1}:
		default:
			d.logger.Warn("webhook queue full, dropping delivery", "endpoint", ep.ID, "event", event.ID)
		}
	}
}

// Close stops the workers. Queued and in-flight retries are dropped.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case job := <-d.queue:
			d.deliver(job)
		}
	}
}

func (d *Dispatcher) deliver(job delivery) {
	req, err := http.NewRequest(http.MethodPost, job.endpoint.URL, bytes.NewReader(job.body))
	if err != nil {
		d.logger.Error("webhook request invalid", "endpoint", job.endpoint.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Braid-Event", job.event.Type)
	req.Header.Set("X-Braid-Delivery", job.event.ID)
	req.Header.Set("X-Braid-Attempt", strconv.Itoa(job.attempt))
	if job.endpoint.Secret != "" {
		req.Header.Set("X-Braid-Signature", "sha256="+Sign(job.body, job.endpoint.Secret))
	}

	resp, err := d.client.Do(req)
	if err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 400 {
			d.registry.markDelivered(job.endpoint.ID)
			return
		}
	}

	d.registry.markFailed(job.endpoint.ID)
	if job.attempt >= maxAttempts {
		d.logger.Warn("webhook delivery abandoned",
			"endpoint", job.endpoint.ID, "event", job.event.ID, "attempts", job.attempt)
		return
	}

	wait := d.backoff(job.attempt)
	job.attempt++
	time.AfterFunc(wait, func() {
		select {
		case <-d.done:
		case d.queue <- job:
		}
	})
}
