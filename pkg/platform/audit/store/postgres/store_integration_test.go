//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pims/pkg/domain"
	audit "pims/pkg/platform/audit"
	"pims/pkg/platform/audit/outbox"
	auditpostgres "pims/pkg/platform/audit/store/postgres"
	"pims/pkg/platform/sentinel"
	txcontext "pims/pkg/platform/tx"
	"pims/pkg/testutil/containers"
)

func TestAuditStoreWritesOutbox(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.Truncate(ctx))

	store := auditpostgres.New(pg.DB)
	fileID := uuid.NewString()
	actor := domain.UserID(uuid.New())
	base := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	err := txcontext.RunInTx(ctx, pg.DB, func(ctx context.Context) error {
		for i, action := range []audit.Action{audit.ActionFileCreated, audit.ActionFileSent, audit.ActionFileRecalled} {
			if err := store.Append(ctx, audit.Entry{
				EntityType: audit.EntityFile,
				EntityID:   fileID,
				Action:     action,
				ActorID:    actor,
				Details:    map[string]string{"step": string(action)},
				Timestamp:  base.Add(time.Duration(i) * time.Hour),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	entries, err := store.ListByEntity(ctx, audit.EntityFile, fileID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, audit.ActionFileCreated, entries[0].Action)
	assert.Equal(t, actor, entries[2].ActorID)

	latest, err := store.LatestByActions(ctx, audit.EntityFile, fileID, audit.CustodyActions...)
	require.NoError(t, err)
	assert.Equal(t, audit.ActionFileRecalled, latest.Action)

	_, err = store.LatestByActions(ctx, audit.EntityFile, uuid.NewString(), audit.CustodyActions...)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	outboxStore := outbox.NewPostgres(pg.DB)
	var claimed []outbox.Message
	err = outboxStore.ClaimUnpublished(ctx, 10, func(ctx context.Context, msgs []outbox.Message) error {
		claimed = msgs
		ids := make([]uuid.UUID, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		return outboxStore.MarkPublished(ctx, ids, time.Now())
	})
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.Equal(t, fileID, claimed[0].AggregateID)
	assert.Equal(t, string(audit.ActionFileCreated), claimed[0].EventType)

	err = outboxStore.ClaimUnpublished(ctx, 10, func(ctx context.Context, msgs []outbox.Message) error {
		if len(msgs) != 0 {
			return errors.New("published rows were claimed again")
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestAuditAppendRollsBackWithTransaction(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.Truncate(ctx))

	store := auditpostgres.New(pg.DB)
	fileID := uuid.NewString()
	boom := errors.New("boom")

	err := txcontext.RunInTx(ctx, pg.DB, func(ctx context.Context) error {
		if err := store.Append(ctx, audit.Entry{
			EntityType: audit.EntityFile,
			EntityID:   fileID,
			Action:     audit.ActionFileCreated,
			Timestamp:  time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := store.ListByEntity(ctx, audit.EntityFile, fileID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAuditQueryFilters(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.Truncate(ctx))

	store := auditpostgres.New(pg.DB)
	base := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	clerk := domain.UserID(uuid.New())
	officer := domain.UserID(uuid.New())
	fileID := uuid.NewString()
	for i, e := range []audit.Entry{
		{Action: audit.ActionFileCreated, ActorID: clerk},
		{Action: audit.ActionFileSent, ActorID: clerk},
		{Action: audit.ActionFileSent, ActorID: officer},
	} {
		e.EntityType = audit.EntityFile
		e.EntityID = fileID
		e.Timestamp = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Append(ctx, e))
	}

	all, err := store.Query(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, officer, all[0].ActorID)

	sent, err := store.Query(ctx, audit.Filter{ActorID: &clerk, Actions: []audit.Action{audit.ActionFileSent}})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Timestamp.Equal(base.Add(time.Hour)))

	window, err := store.Query(ctx, audit.Filter{EntityType: audit.EntityFile, From: base, To: base.Add(2 * time.Hour), Limit: 1})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, audit.ActionFileSent, window[0].Action)
}
