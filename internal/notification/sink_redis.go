package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"pims/pkg/domain"
)

// RedisSink keeps a capped per-user inbox list and publishes every
// notification on a channel for live subscribers.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
	limit   int64
}

func NewRedisSink(client redis.UniversalClient, channel string, limit int64) *RedisSink {
	if limit <= 0 {
		limit = 200
	}
	return &RedisSink{client: client, channel: channel, limit: limit}
}

func inboxKey(n Notification) string {
	if n.UserID.IsNil() && n.Role != "" {
		return "pims:inbox:role:" + string(n.Role)
	}
	return "pims:inbox:user:" + n.UserID.String()
}

func readKey(user domain.UserID) string {
	return "pims:inbox:read:" + user.String()
}

func (s *RedisSink) Notify(ctx context.Context, n Notification) error {
	n = n.withID()
	n.Read = false
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	key := inboxKey(n)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, s.limit-1)
		if s.channel != "" {
			pipe.Publish(ctx, s.channel, payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

// Inbox returns the newest notifications for user and, when role is set, for
// that role, flagged with the user's read state.
func (s *RedisSink) Inbox(ctx context.Context, user domain.UserID, role domain.Role, limit int64) ([]Notification, error) {
	out, err := s.inbox(ctx, user, role, limit)
	if err != nil {
		return nil, err
	}
	read, err := s.client.SMembers(ctx, readKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("read inbox state: %w", err)
	}
	for i := range out {
		out[i].Read = slices.Contains(read, out[i].ID)
	}
	return out, nil
}

// MarkRead marks one notification in the user's inbox as read. It reports
// false when id is not in that inbox.
func (s *RedisSink) MarkRead(ctx context.Context, user domain.UserID, role domain.Role, id string) (bool, error) {
	notes, err := s.inbox(ctx, user, role, s.limit)
	if err != nil {
		return false, err
	}
	if !slices.ContainsFunc(notes, func(n Notification) bool { return n.ID == id }) {
		return false, nil
	}
	if err := s.client.SAdd(ctx, readKey(user), id).Err(); err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return true, nil
}

// MarkAllRead marks everything currently in the user's inbox as read and
// returns how many were unread. Ids that fell out of the capped inbox are
// dropped from the read set.
func (s *RedisSink) MarkAllRead(ctx context.Context, user domain.UserID, role domain.Role) (int, error) {
	notes, err := s.Inbox(ctx, user, role, s.limit)
	if err != nil {
		return 0, err
	}
	ids := make([]any, 0, len(notes))
	for _, n := range notes {
		if n.ID != "" {
			ids = append(ids, n.ID)
		}
	}
	key := readKey(user)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(ids) > 0 {
			pipe.SAdd(ctx, key, ids...)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark inbox read: %w", err)
	}
	return CountUnread(notes), nil
}

func (s *RedisSink) inbox(ctx context.Context, user domain.UserID, role domain.Role, limit int64) ([]Notification, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	keys := []string{inboxKey(Notification{UserID: user})}
	if role != "" {
		keys = append(keys, inboxKey(Notification{Role: role}))
	}
	var out []Notification
	for _, key := range keys {
		raw, err := s.client.LRange(ctx, key, 0, limit-1).Result()
		if err != nil {
			return nil, fmt.Errorf("read inbox: %w", err)
		}
		for _, r := range raw {
			var n Notification
			if err := json.Unmarshal([]byte(r), &n); err != nil {
				return nil, fmt.Errorf("decode notification: %w", err)
			}
			out = append(out, n)
		}
	}
	if len(keys) > 1 {
		sortNewestFirst(out)
		if int64(len(out)) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}

func sortNewestFirst(notes []Notification) {
	slices.SortStableFunc(notes, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
