package eccang

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Client говорит с order-management сервисом ECCANG: единственная
// SOAP-операция callService, внутри которой имя сервиса и JSON-параметры.
type Client struct {
	endpoint string
	appToken string
	appKey   string
	httpc    *http.Client

	rl          RateLimiter
	rlPerMinute int64
}

func New(baseURL, appToken, appKey string) *Client {
	endpoint := ""
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/default/svc/web-service"
	}
	return &Client{
		endpoint: endpoint,
		appToken: appToken,
		appKey:   appKey,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) WithRateLimiter(rl RateLimiter, perMinute int64) *Client {
	c.rl = rl
	c.rlPerMinute = perMinute
	return c
}

// Configured: без любого из трёх значений исходящие вызовы отключены.
func (c *Client) Configured() bool {
	return c.endpoint != "" && c.appToken != "" && c.appKey != ""
}

func (c *Client) Call(ctx context.Context, service string, params any) (any, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if c.rl != nil && c.rlPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:eccang:%s", time.Now().UTC().Format("200601021504"))
		allowed, n, err := c.rl.Allow(ctx, minuteKey, c.rlPerMinute, 70*time.Second)
		if err == nil && !allowed {
			// Провайдер банит за частые вызовы: притормаживаем, не падаем.
			slog.Warn("eccang rate limit exceeded", "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	envelope, err := BuildEnvelope(service, c.appToken, c.appKey, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(envelope))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapNamespace+"callService")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("eccang http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	return ParseEnvelope(body)
}

func (c *Client) CreateOrder(ctx context.Context, params any) (any, error) {
	return c.Call(ctx, "createOrder", params)
}

func (c *Client) GetTrackNumber(ctx context.Context, params any) (any, error) {
	return c.Call(ctx, "getTrackNumber", params)
}

func (c *Client) GetLabelURL(ctx context.Context, params any) (any, error) {
	return c.Call(ctx, "getLabelUrl", params)
}

func (c *Client) GetCargoTrack(ctx context.Context, params any) (any, error) {
	return c.Call(ctx, "getCargoTrack", params)
}

func (c *Client) CancelOrder(ctx context.Context, params any) (any, error) {
	return c.Call(ctx, "cancelOrder", params)
}

func (c *Client) GetShippingMethod(ctx context.Context, params any) (any, error) {
	return c.Call(ctx, "getShippingMethod", params)
}

func (c *Client) GetReceivingExpense(ctx context.Context, params any) (any, error) {
	return c.Call(ctx, "getReceivingExpense", params)
}
