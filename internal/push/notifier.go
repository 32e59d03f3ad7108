// Package push delivers notifications through Firebase Cloud Messaging.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/config"
	"github.com/fathima-sithara/chat-relay/internal/httpclient"
	"github.com/fathima-sithara/chat-relay/internal/metrics"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

const notConfigured = "push notifications not configured"

// TokenSource resolves device tokens.
type TokenSource interface {
	TokensForUser(ctx context.Context, userID string) ([]string, error)
	TokensForGroup(ctx context.Context, groupID string) ([]string, error)
}

type Result struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message,omitempty"`
	MessageID    string   `json:"messageId,omitempty"`
	SuccessCount int      `json:"successCount"`
	FailureCount int      `json:"failureCount"`
	Errors       []string `json:"errors,omitempty"`
	UserID       string   `json:"userId,omitempty"`
	GroupID      string   `json:"groupId,omitempty"`
	Topic        string   `json:"topic,omitempty"`
}

type Notifier struct {
	enabled   bool
	client    *httpclient.Client
	baseURL   string
	iidURL    string
	projectID string
	key       string
	tokens    TokenSource
	logger    *zap.Logger
}

func NewNotifier(cfg config.PushConfig, breaker config.BreakerConfig, tokens TokenSource, logger *zap.Logger) *Notifier {
	client := httpclient.NewClient(httpclient.ClientConfig{
		Name:               "fcm",
		Timeout:            time.Duration(cfg.TimeoutSeconds) * time.Second,
		InitialInterval:    200 * time.Millisecond,
		RetryMaxElapsed:    time.Duration(cfg.RetryMaxElapsedSeconds) * time.Second,
		MaxIdleConns:       20,
		IdleConnTimeout:    90 * time.Second,
		BreakerMaxFailures: breaker.MaxFailures,
		BreakerInterval:    time.Duration(breaker.IntervalSec) * time.Second,
		BreakerTimeout:     time.Duration(breaker.TimeoutSec) * time.Second,
	}, logger)
	return &Notifier{
		enabled:   cfg.Enabled,
		client:    client,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		iidURL:    strings.TrimRight(cfg.IIDURL, "/"),
		projectID: cfg.ProjectID,
		key:       cfg.ServerKey,
		tokens:    tokens,
		logger:    logger,
	}
}

func (n *Notifier) Enabled() bool { return n.enabled }

// SendToUser delivers to every registered device of the user.
func (n *Notifier) SendToUser(ctx context.Context, userID, title, body string, data map[string]any) (*Result, error) {
	if !n.enabled {
		return &Result{Success: false, Message: notConfigured, UserID: userID}, nil
	}
	tokens, err := n.tokens.TokensForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no device tokens for user %s", utils.ErrNotFound, userID)
	}
	res := n.multicast(ctx, tokens, title, body, data)
	res.UserID = userID
	return res, nil
}

// SendToGroup delivers to the devices of every group member. group_id is added to data.
func (n *Notifier) SendToGroup(ctx context.Context, groupID, title, body string, data map[string]any) (*Result, error) {
	if !n.enabled {
		return &Result{Success: false, Message: notConfigured, GroupID: groupID}, nil
	}
	tokens, err := n.tokens.TokensForGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no device tokens for group %s", utils.ErrNotFound, groupID)
	}
	merged := map[string]any{"group_id": groupID}
	for k, v := range data {
		merged[k] = v
	}
	res := n.multicast(ctx, tokens, title, body, merged)
	res.GroupID = groupID
	return res, nil
}

func (n *Notifier) SendToTopic(ctx context.Context, topic, title, body string, data map[string]any) (*Result, error) {
	if !n.enabled {
		return &Result{Success: false, Message: notConfigured, Topic: topic}, nil
	}
	id, err := n.send(ctx, fcmMessage{Topic: topic, Notification: &fcmNotification{Title: title, Body: body}, Data: stringify(data)})
	if err != nil {
		metrics.PushRequests.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.PushRequests.WithLabelValues("success").Inc()
	return &Result{Success: true, MessageID: id, SuccessCount: 1, Topic: topic}, nil
}

func (n *Notifier) SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*Result, error) {
	return n.topicMembership(ctx, "batchAdd", tokens, topic)
}

func (n *Notifier) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*Result, error) {
	return n.topicMembership(ctx, "batchRemove", tokens, topic)
}

func (n *Notifier) multicast(ctx context.Context, tokens []string, title, body string, data map[string]any) *Result {
	res := &Result{}
	payload := stringify(data)
	for _, tok := range tokens {
		id, err := n.send(ctx, fcmMessage{Token: tok, Notification: &fcmNotification{Title: title, Body: body}, Data: payload})
		if err != nil {
			res.FailureCount++
			res.Errors = append(res.Errors, err.Error())
			metrics.PushRequests.WithLabelValues("failure").Inc()
			n.logger.Warn("push send failed", zap.Error(err))
			continue
		}
		res.SuccessCount++
		if res.MessageID == "" {
			res.MessageID = id
		}
		metrics.PushRequests.WithLabelValues("success").Inc()
	}
	res.Success = res.SuccessCount > 0
	return res
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmMessage struct {
	Token        string            `json:"token,omitempty"`
	Topic        string            `json:"topic,omitempty"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

func (n *Notifier) send(ctx context.Context, msg fcmMessage) (string, error) {
	body, err := json.Marshal(map[string]any{"message": msg})
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", n.baseURL, n.projectID)
	resp, err := n.client.Do(ctx, n.request(http.MethodPost, url, body, "Bearer "+n.key))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fcm send status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(raw, &out)
	return out.Name, nil
}

func (n *Notifier) topicMembership(ctx context.Context, op string, tokens []string, topic string) (*Result, error) {
	if !n.enabled {
		return &Result{Success: false, Message: notConfigured, Topic: topic}, nil
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: at least one token is required", utils.ErrBadRequest)
	}
	body, err := json.Marshal(map[string]any{
		"to":                  "/topics/" + strings.TrimPrefix(topic, "/topics/"),
		"registration_tokens": tokens,
	})
	if err != nil {
		return nil, err
	}
	resp, err := n.client.Do(ctx, n.request(http.MethodPost, n.iidURL+"/iid/v1:"+op, body, "key="+n.key))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("iid %s status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out struct {
		Results []struct {
			Error string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode iid response: %w", err)
	}
	res := &Result{Topic: topic}
	for _, r := range out.Results {
		if r.Error != "" {
			res.FailureCount++
			res.Errors = append(res.Errors, r.Error)
			continue
		}
		res.SuccessCount++
	}
	res.Success = res.FailureCount == 0
	return res, nil
}

func (n *Notifier) request(method, url string, body []byte, auth string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", auth)
		return req, nil
	}
}

// stringify converts data values to the string map FCM requires. Strings pass
// through, anything else is JSON encoded.
func stringify(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case string:
			out[k] = t
		default:
			b, err := json.Marshal(t)
			if err != nil {
				out[k] = fmt.Sprint(t)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
