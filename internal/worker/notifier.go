package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Alert is the rendered "almost your turn" notification for one token.
type Alert struct {
	Title                string `json:"title"`
	Body                 string `json:"body"`
	TokenID              string `json:"tokenId"`
	TokenNumber          int    `json:"tokenNumber"`
	BusinessID           string `json:"businessId"`
	EstimatedWaitMinutes int    `json:"estimatedWaitMinutes"`
}

// Notifier delivers one alert to a customer's push handle. A nil error means
// the alert reached the provider; anything else leaves the token eligible for
// the next cycle.
type Notifier interface {
	Send(ctx context.Context, handle string, alert Alert) error
}

// NewNotifier picks a provider by kind. Unknown kinds fall back to logging so
// a misconfigured deploy stays observable instead of silently dropping alerts.
func NewNotifier(kind, pushURL, pushToken string, log *logrus.Logger) Notifier {
	switch kind {
	case "", "stub", "log":
		return logNotifier{log: log}
	case "noop":
		return noopNotifier{}
	case "fail":
		return failNotifier{}
	case "push":
		if pushURL == "" {
			return logNotifier{log: log}
		}
		return pushNotifier{url: pushURL, token: pushToken}
	default:
		return logNotifier{log: log}
	}
}

type logNotifier struct {
	log *logrus.Logger
}

func (p logNotifier) Send(ctx context.Context, handle string, alert Alert) error {
	p.log.WithFields(logrus.Fields{
		"handle":       handle,
		"token_id":     alert.TokenID,
		"token_number": alert.TokenNumber,
	}).Info(alert.Body)
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, handle string, alert Alert) error {
	return nil
}

type failNotifier struct{}

func (failNotifier) Send(ctx context.Context, handle string, alert Alert) error {
	return errors.New("provider failure")
}

type pushNotifier struct {
	url   string
	token string
}

func (p pushNotifier) Send(ctx context.Context, handle string, alert Alert) error {
	payload := map[string]interface{}{
		"to":    handle,
		"title": alert.Title,
		"body":  alert.Body,
		"data": map[string]string{
			"type":         "queue_eta_alert",
			"token_id":     alert.TokenID,
			"token_number": strconv.Itoa(alert.TokenNumber),
			"business_id":  alert.BusinessID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("push provider rejected request: %s", resp.Status)
	}
	return nil
}
