package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/chat-relay/internal/utils"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Presence is the cross-instance view of a user.
type Presence struct {
	UserID   string    `json:"userId"`
	Identity string    `json:"identity,omitempty"`
	Status   string    `json:"status"`
	Node     string    `json:"node,omitempty"`
	LastSeen time.Time `json:"lastSeen"`
}

// PresenceStore mirrors the local registry into Redis so other instances and
// the REST surface can see who is reachable.
// Keys: <prefix>:presence:<userID> -> hash{identity,status,conn_id,node,last_seen}
type PresenceStore struct {
	client *goredis.Client
	prefix string
	node   string
	ttl    time.Duration
	now    func() time.Time
}

func NewPresenceStore(client *goredis.Client, prefix, node string, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: client, prefix: prefix, node: node, ttl: ttl, now: time.Now}
}

func (s *PresenceStore) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *PresenceStore) SetOnline(ctx context.Context, userID, identity, connID string) error {
	key := s.key(userID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"identity", identity,
		"status", StatusOnline,
		"conn_id", connID,
		"node", s.node,
		"last_seen", s.now().Unix(),
	)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Touch refreshes last_seen and the key expiry of an online user.
func (s *PresenceStore) Touch(ctx context.Context, userID string) error {
	key := s.key(userID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "last_seen", s.now().Unix())
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline keeps the record so last_seen stays readable, but only when this
// node still owns it. A newer connection on another node is left alone.
func (s *PresenceStore) SetOffline(ctx context.Context, userID string) error {
	key := s.key(userID)
	node, err := s.client.HGet(ctx, key, "node").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}
	if node != "" && node != s.node {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "status", StatusOffline, "last_seen", s.now().Unix())
	pipe.HDel(ctx, key, "conn_id", "node")
	pipe.Expire(ctx, key, 24*time.Hour)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *PresenceStore) Get(ctx context.Context, userID string) (Presence, error) {
	vals, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return Presence{}, err
	}
	if len(vals) == 0 {
		return Presence{}, utils.ErrNotFound
	}
	p := Presence{UserID: userID, Identity: vals["identity"], Status: vals["status"], Node: vals["node"]}
	if ts, err := strconv.ParseInt(vals["last_seen"], 10, 64); err == nil {
		p.LastSeen = time.Unix(ts, 0).UTC()
	}
	return p, nil
}
