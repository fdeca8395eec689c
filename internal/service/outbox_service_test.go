package service

import (
	"context"
	"testing"

	"saghat/internal/model"

	"github.com/stretchr/testify/require"
)

func TestOutboxServiceList(t *testing.T) {
	db := openTestDB(t)
	for i, status := range []string{model.OutboxStatusFailed, model.OutboxStatusSent, model.OutboxStatusFailed} {
		require.NoError(t, db.Create(&model.OutboxMessage{
			EventType:  model.EventPaymentRecorded,
			MessageKey: string(rune('a' + i)),
			Topic:      "saghat.payment.recorded",
			Payload:    "{}",
			Status:     status,
		}).Error)
	}
	svc := NewOutboxService(db)

	failed, err := svc.List(context.Background(), "failed", 0)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	require.Equal(t, "a", failed[0].MessageKey)
	require.Equal(t, "c", failed[1].MessageKey)

	one, err := svc.List(context.Background(), model.OutboxStatusFailed, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)

	_, err = svc.List(context.Background(), "LOST", 10)
	require.ErrorIs(t, err, ErrInvalidOutboxStatus)
}
