// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rentworks/access-service/internal/storage"
	"github.com/rentworks/access-service/internal/types"
)

// envelope is the wire format endpoints receive.
type envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Signature returns the hex encoded HMAC-SHA256 of the request body under
// the endpoint secret. Receivers recompute it to authenticate deliveries.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Attempt claims and executes one delivery attempt. The claim atomically
// increments the attempt counter and only succeeds while the delivery is
// non terminal and under its attempt budget, so concurrent workers and the
// scheduler cannot double deliver. Losing the claim is the normal case for
// a racing worker and returns quietly.
func (s *Service) Attempt(ctx context.Context, deliveryID string) {
	ctx, span := s.tracer.Start(ctx, "webhooks.Service.Attempt")
	defer span.End()

	delivery, err := s.storage.ClaimDeliveryAttempt(ctx, deliveryID, time.Now())
	if err != nil {
		if err != storage.ErrNotFound {
			s.logger.Errorf("unable to claim delivery %s: %v", deliveryID, err)
		}
		return
	}

	endpoint, err := s.storage.GetEndpointByID(ctx, delivery.EndpointID)
	if err != nil {
		if err == storage.ErrNotFound {
			s.finish(ctx, delivery, nil, "endpoint no longer exists")
			return
		}
		s.logger.Errorf("unable to load endpoint %s: %v", delivery.EndpointID, err)
		s.finish(ctx, delivery, nil, "endpoint lookup failed")
		return
	}

	// The endpoint may have been disabled after the delivery was queued.
	// Re-checked at dispatch time so a disabled endpoint stops receiving
	// traffic immediately, queued deliveries included.
	if !endpoint.IsActive {
		s.fail(ctx, delivery, nil, "endpoint is disabled")
		return
	}

	response, errMsg := s.dispatch(ctx, delivery, endpoint)
	if errMsg == "" && response != nil && response.StatusCode >= 200 && response.StatusCode < 300 {
		s.deliver(ctx, delivery, response)
		return
	}
	if errMsg == "" {
		errMsg = http.StatusText(response.StatusCode)
	}
	s.finish(ctx, delivery, response, errMsg)
}

// dispatch performs the HTTP POST. A transport level failure yields a nil
// response and a non empty error message.
func (s *Service) dispatch(ctx context.Context, delivery *types.WebhookDelivery, endpoint *types.WebhookEndpoint) (*types.DeliveryResponse, string) {
	body, err := json.Marshal(envelope{
		Event:     delivery.Event,
		Data:      delivery.Payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, "unable to encode delivery body"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, "invalid endpoint url"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", delivery.Event)
	req.Header.Set("X-Webhook-Delivery", delivery.ID)
	req.Header.Set("X-Webhook-Signature", Signature(endpoint.Secret, body))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err.Error()
	}
	defer resp.Body.Close()

	// Responses are kept for operator debugging only, truncated hard.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, int64(s.config.MaxResponseSize)))

	return &types.DeliveryResponse{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}, ""
}

func (s *Service) deliver(ctx context.Context, delivery *types.WebhookDelivery, response *types.DeliveryResponse) {
	if err := s.storage.MarkDeliveryDelivered(ctx, delivery.ID, delivery.Attempts, response, time.Now()); err != nil {
		s.logger.Errorf("unable to mark delivery %s delivered: %v", delivery.ID, err)
		return
	}

	_ = s.monitor.IncrementWebhookDelivery(map[string]string{
		"event":   delivery.Event,
		"outcome": "delivered",
	})
}

// finish records a failed attempt, scheduling a retry while the budget
// allows and failing terminally once it is spent.
func (s *Service) finish(ctx context.Context, delivery *types.WebhookDelivery, response *types.DeliveryResponse, errMsg string) {
	if delivery.Attempts >= delivery.MaxAttempts {
		s.fail(ctx, delivery, response, errMsg)
		return
	}

	nextRetryAt := time.Now().Add(s.config.Backoff(delivery.Attempts))
	if err := s.storage.MarkDeliveryRetrying(ctx, delivery.ID, delivery.Attempts, response, errMsg, nextRetryAt); err != nil {
		s.logger.Errorf("unable to mark delivery %s retrying: %v", delivery.ID, err)
		return
	}

	_ = s.monitor.IncrementWebhookDelivery(map[string]string{
		"event":   delivery.Event,
		"outcome": "retrying",
	})
}

func (s *Service) fail(ctx context.Context, delivery *types.WebhookDelivery, response *types.DeliveryResponse, errMsg string) {
	if err := s.storage.MarkDeliveryFailed(ctx, delivery.ID, delivery.Attempts, response, errMsg); err != nil {
		s.logger.Errorf("unable to mark delivery %s failed: %v", delivery.ID, err)
		return
	}

	s.logger.Warnf("delivery %s failed after %d attempts: %s", delivery.ID, delivery.Attempts, errMsg)
	_ = s.monitor.IncrementWebhookDelivery(map[string]string{
		"event":   delivery.Event,
		"outcome": "failed",
	})
}
