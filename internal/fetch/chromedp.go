package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"

	"sitewatch/internal/logging"
)

func init() {
	RegisterBackend("chromedp", func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewChromeDPClient(cfg, logger), nil
	})
}

// ChromeDPClient fetches pages through a headless browser and returns
// the rendered DOM. Meant for targets whose content is assembled by
// JavaScript and would diff as an empty shell over plain HTTP.
type ChromeDPClient struct {
	timeout time.Duration
	logger  logging.Logger
}

// NewChromeDPClient builds a ChromeDPClient with the configured timeout.
func NewChromeDPClient(cfg Config, logger logging.Logger) *ChromeDPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ChromeDPClient{
		timeout: timeout,
		logger:  logger.With(logging.Field{Key: "backend", Value: "chromedp"}),
	}
}

// Do navigates to req.URL, waits for the document to become ready and
// returns the rendered outer HTML. Method, body and custom headers are
// not supported by this backend; only GET-style navigation.
func (cdc *ChromeDPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	ctx, cancel := context.WithTimeout(ctx, cdc.timeout)
	defer cancel()

	browserCtx, browserCancel := chromedp.NewContext(ctx)
	defer browserCancel()

	cdc.logger.Debug("rendering page", logging.Field{Key: "url", Value: req.URL})

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		cdc.logger.Warn("render failed",
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	// The browser surfaces navigation failures as run errors; a page we
	// got HTML back from is reported as a 200.
	return &Response{
		Request:    req,
		Body:       []byte(html),
		StatusCode: http.StatusOK,
		FetchedAt:  time.Now(),
	}, nil
}

func (cdc *ChromeDPClient) Close() error { return nil }

var _ WebClient = (*ChromeDPClient)(nil)
