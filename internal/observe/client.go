package observe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/24ep/chatkit-starter/internal/config"
	"github.com/24ep/chatkit-starter/internal/logging"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	ingestionPath  = "/api/public/ingestion"
	defaultTimeout = 10 * time.Second
)

// FailureCounter counts delivery failures. prometheus.Counter satisfies it.
type FailureCounter interface {
	Inc()
}

// EventCounter counts emitted events by ingestion type.
type EventCounter func(eventType string)

// Exporter ships ingestion events to an observability backend.
type Exporter interface {
	Export(events ...Event)
	Enabled() bool
}

// Client is an Exporter backed by the Langfuse ingestion API. A nil Client
// is valid and exports nothing, so callers never branch on configuration.
type Client struct {
	resty    *resty.Client
	logger   *logging.Logger
	timeout  time.Duration
	failures FailureCounter
	events   EventCounter

	wg sync.WaitGroup
}

var (
	sharedClient *Client
	sharedOnce   sync.Once
)

// Shared returns the process-wide client, constructed once from the first
// configuration it sees. Returns nil when credentials are missing.
func Shared(cfg config.LangfuseConfig, logger *logging.Logger) *Client {
	sharedOnce.Do(func() {
		sharedClient = NewClient(cfg, logger)
	})
	return sharedClient
}

// NewClient creates an ingestion client, or nil when the configuration has
// no credentials.
func NewClient(cfg config.LangfuseConfig, logger *logging.Logger) *Client {
	if !cfg.Enabled() {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Host, "/")).
		SetBasicAuth(cfg.PublicKey, cfg.SecretKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(defaultTimeout)

	return &Client{
		resty:   rc,
		logger:  logger,
		timeout: defaultTimeout,
	}
}

// SetFailureCounter wires a delivery-failure counter.
func (c *Client) SetFailureCounter(counter FailureCounter) {
	if c == nil {
		return
	}
	c.failures = counter
}

// SetEventCounter wires a per-type counter of emitted events.
func (c *Client) SetEventCounter(counter EventCounter) {
	if c == nil {
		return
	}
	c.events = counter
}

// Enabled reports whether events will actually be shipped.
func (c *Client) Enabled() bool {
	return c != nil
}

// Export ships events in the background. Delivery is best-effort: failures
// are logged and counted, never returned to the caller.
func (c *Client) Export(events ...Event) {
	if c == nil || len(events) == 0 {
		return
	}
	if c.events != nil {
		for _, e := range events {
			c.events(e.Type)
		}
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.send(events)
	}()
}

// Flush waits for in-flight exports. Used during shutdown and in tests.
func (c *Client) Flush() {
	if c == nil {
		return
	}
	c.wg.Wait()
}

func (c *Client) send(events []Event) {
	payload, err := sonic.Marshal(batch{Batch: events})
	if err != nil {
		c.fail("failed to encode trace batch", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(payload).
		Post(ingestionPath)
	if err != nil {
		c.fail("trace delivery failed", err)
		return
	}
	// 207 means partial success; individual event errors are not retried.
	if resp.IsError() {
		c.fail("trace delivery rejected", nil,
			zap.Int("status", resp.StatusCode()),
			zap.Int("events", len(events)))
	}
}

func (c *Client) fail(msg string, err error, fields ...zap.Field) {
	if c.failures != nil {
		c.failures.Inc()
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Warn(msg, fields...)
}
