//go:build integration

package notification_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pims/internal/notification"
	"pims/pkg/domain"
	"pims/pkg/testutil/containers"
)

func TestRedisSinkAgainstRedis(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, rc.FlushAll(ctx))

	sink := notification.NewRedisSink(rc.Client.Client, rc.Config.Channel, 2)
	sub := rc.Client.Subscribe(ctx, rc.Config.Channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	user := domain.UserID(uuid.New())
	base := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	for i, kind := range []string{"file_received", "workflow_submitted", "activation_approved"} {
		require.NoError(t, sink.Notify(ctx, notification.Notification{
			UserID:    user,
			Kind:      kind,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var first notification.Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &first))
	assert.Equal(t, "file_received", first.Kind)
	assert.Equal(t, user, first.UserID)

	inbox, err := sink.Inbox(ctx, user, "", 10)
	require.NoError(t, err)
	require.Len(t, inbox, 2, "inbox is capped")
	assert.Equal(t, "activation_approved", inbox[0].Kind)
	assert.Equal(t, "workflow_submitted", inbox[1].Kind)
}
