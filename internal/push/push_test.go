package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/config"
	"github.com/fathima-sithara/chat-relay/internal/utils"
)

type staticTokens struct {
	users  map[string][]string
	groups map[string][]string
}

func (s staticTokens) TokensForUser(_ context.Context, userID string) ([]string, error) {
	return s.users[userID], nil
}

func (s staticTokens) TokensForGroup(_ context.Context, groupID string) ([]string, error) {
	return s.groups[groupID], nil
}

type fcmServer struct {
	mu       sync.Mutex
	messages []map[string]any
	auth     []string
	paths    []string
	reject   string
}

func (f *fcmServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	if tokens, ok := body["registration_tokens"].([]any); ok {
		results := make([]map[string]string, 0, len(tokens))
		for _, tok := range tokens {
			if tok == f.reject {
				results = append(results, map[string]string{"error": "INVALID_ARGUMENT"})
				continue
			}
			results = append(results, map[string]string{})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
		return
	}

	msg, _ := body["message"].(map[string]any)
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	if msg["token"] == f.reject {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"status":"INVALID_ARGUMENT"}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"name": "projects/relay/messages/1"})
}

func newTestNotifier(t *testing.T, srv *fcmServer, tokens TokenSource) *Notifier {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return NewNotifier(config.PushConfig{
		Enabled:                true,
		BaseURL:                ts.URL,
		IIDURL:                 ts.URL,
		ProjectID:              "relay",
		ServerKey:              "secret",
		TimeoutSeconds:         2,
		RetryMaxElapsedSeconds: 1,
	}, config.BreakerConfig{MaxFailures: 50, IntervalSec: 60, TimeoutSec: 30}, tokens, zap.NewNop())
}

func TestDisabledNotifierReportsNotConfigured(t *testing.T) {
	req := require.New(t)

	n := NewNotifier(config.PushConfig{}, config.BreakerConfig{}, staticTokens{}, zap.NewNop())

	res, err := n.SendToUser(context.Background(), "u1", "hi", "there", nil)
	req.NoError(err)
	req.False(res.Success)
	req.Equal(notConfigured, res.Message)

	res, err = n.SubscribeToTopic(context.Background(), []string{"t1"}, "news")
	req.NoError(err)
	req.False(res.Success)
}

func TestSendToUserCountsPerDevice(t *testing.T) {
	req := require.New(t)

	// Given a user with two devices, one of which FCM rejects
	srv := &fcmServer{reject: "bad"}
	n := newTestNotifier(t, srv, staticTokens{users: map[string][]string{"u1": {"good", "bad"}}})

	// When a notification is sent
	res, err := n.SendToUser(context.Background(), "u1", "New message", "hello", map[string]any{"conversationId": "c1", "count": 2})

	// Then one delivery succeeds and one fails
	req.NoError(err)
	req.True(res.Success)
	req.Equal(1, res.SuccessCount)
	req.Equal(1, res.FailureCount)
	req.Equal("projects/relay/messages/1", res.MessageID)
	req.Len(srv.messages, 2)
	req.Equal("/v1/projects/relay/messages:send", srv.paths[0])
	req.Equal("Bearer secret", srv.auth[0])

	data := srv.messages[0]["data"].(map[string]any)
	req.Equal("c1", data["conversationId"])
	req.Equal("2", data["count"])
}

func TestSendToUserWithoutTokens(t *testing.T) {
	req := require.New(t)

	n := newTestNotifier(t, &fcmServer{}, staticTokens{})

	_, err := n.SendToUser(context.Background(), "ghost", "t", "b", nil)
	req.ErrorIs(err, utils.ErrNotFound)
}

func TestSendToGroupAddsGroupID(t *testing.T) {
	req := require.New(t)

	srv := &fcmServer{}
	n := newTestNotifier(t, srv, staticTokens{groups: map[string][]string{"g1": {"a", "b", "c"}}})

	res, err := n.SendToGroup(context.Background(), "g1", "Team", "standup", nil)
	req.NoError(err)
	req.Equal(3, res.SuccessCount)
	req.Equal("g1", res.GroupID)
	for _, msg := range srv.messages {
		req.Equal("g1", msg["data"].(map[string]any)["group_id"])
	}
}

func TestSendToTopic(t *testing.T) {
	req := require.New(t)

	srv := &fcmServer{}
	n := newTestNotifier(t, srv, staticTokens{})

	res, err := n.SendToTopic(context.Background(), "news", "Breaking", "body", nil)
	req.NoError(err)
	req.True(res.Success)
	req.Equal("news", srv.messages[0]["topic"])
	req.Nil(srv.messages[0]["token"])
}

func TestTopicMembership(t *testing.T) {
	req := require.New(t)

	srv := &fcmServer{reject: "stale"}
	n := newTestNotifier(t, srv, staticTokens{})

	res, err := n.SubscribeToTopic(context.Background(), []string{"t1", "stale", "t2"}, "news")
	req.NoError(err)
	req.False(res.Success)
	req.Equal(2, res.SuccessCount)
	req.Equal(1, res.FailureCount)
	req.Equal("/iid/v1:batchAdd", srv.paths[0])
	req.Equal("key=secret", srv.auth[0])

	res, err = n.UnsubscribeFromTopic(context.Background(), []string{"t1"}, "news")
	req.NoError(err)
	req.True(res.Success)
	req.Equal("/iid/v1:batchRemove", srv.paths[1])

	_, err = n.SubscribeToTopic(context.Background(), nil, "news")
	req.ErrorIs(err, utils.ErrBadRequest)
}
