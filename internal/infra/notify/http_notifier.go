package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"restaurant-payment-engine/internal/domain/model"
	"restaurant-payment-engine/internal/domain/ports/adapter"
)

// Compile-time checks
var (
	_ adapter.OrderNotifier = (*HTTPNotifier)(nil)
	_ adapter.OrderNotifier = (*LogNotifier)(nil)
)

// HTTPNotifier posts order status changes to the ordering system's callback
// endpoint. Delivery is best effort; callers log and move on.
type HTTPNotifier struct {
	url    string
	client *http.Client
	log    *zerolog.Logger
}

func NewHTTPNotifier(url string, timeout time.Duration, logger *zerolog.Logger) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "OrderNotifier").Logger()
	return &HTTPNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    &l,
	}
}

type statusPayload struct {
	OrderRef string `json:"order_ref"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	SentAt   string `json:"sent_at"`
}

func (n *HTTPNotifier) NotifyStatus(ctx context.Context, orderRef string, status model.OrderStatus, reason string) error {
	body, err := json.Marshal(statusPayload{
		OrderRef: orderRef,
		Status:   string(status),
		Reason:   reason,
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status callback answered %d", resp.StatusCode)
	}
	n.log.Debug().Str("order_ref", orderRef).Str("status", string(status)).Msg("status pushed to ordering system")
	return nil
}

// LogNotifier is the dev-mode stand-in when no callback URL is configured.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "OrderNotifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) NotifyStatus(_ context.Context, orderRef string, status model.OrderStatus, reason string) error {
	n.log.Info().Str("order_ref", orderRef).Str("status", string(status)).Str("reason", reason).Msg("order status change")
	return nil
}
