package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-spa-checkout/internal/aws/awsmock"
)

const table = "idempotency-table"

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	mock := awsmock.NewDynamo()
	s := NewStore(mock, table, 48*time.Hour)
	ctx := context.Background()

	created, err := s.CreateIfNotExists(ctx, ScopePay, "key-1", "booking-123")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateIfNotExists(ctx, ScopePay, "key-1", "booking-123")
	require.NoError(t, err)
	assert.False(t, created, "duplicate create must report existing record")

	// same key under another scope is independent
	created, err = s.CreateIfNotExists(ctx, ScopeConfirm, "key-1", "")
	require.NoError(t, err)
	assert.True(t, created)

	rec, err := s.Get(ctx, ScopePay, "key-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, "booking-123", rec.BookingID)

	require.NoError(t, s.MarkDone(ctx, ScopePay, "key-1", "booking-123", `{"ok":true}`, 201))
	item := mock.Item(table, ScopedKey(ScopePay, "key-1"))
	require.NotNil(t, item)
	assert.Equal(t, StatusDone, item["status"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, `{"ok":true}`, item["response_body"].(*types.AttributeValueMemberS).Value)

	require.NoError(t, s.MarkFailed(ctx, ScopePay, "key-1", "failed-reason"))
	rec, err = s.Get(ctx, ScopePay, "key-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "failed-reason", rec.Note)
}

func TestGetMissingAndExpired(t *testing.T) {
	mock := awsmock.NewDynamo()
	s := NewStore(mock, table, time.Hour)
	ctx := context.Background()

	rec, err := s.Get(ctx, ScopeConfirm, "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return start }
	_, err = s.CreateIfNotExists(ctx, ScopeConfirm, "k", "b")
	require.NoError(t, err)

	s.nowFunc = func() time.Time { return start.Add(2 * time.Hour) }
	rec, err = s.Get(ctx, ScopeConfirm, "k")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMarkDoneRequiresRecord(t *testing.T) {
	s := NewStore(awsmock.NewDynamo(), table, time.Hour)
	assert.Error(t, s.MarkDone(context.Background(), ScopePay, "ghost", "b", "{}", 200))
}

func TestRecordMarshalsCleanly(t *testing.T) {
	now := time.Now().Round(time.Second)
	rec := NewRecord(ScopeConfirm, "k1", "b1", now, 24*time.Hour)

	m, err := attributevalue.MarshalMap(rec)
	require.NoError(t, err)
	var out IdempotencyRecord
	require.NoError(t, attributevalue.UnmarshalMap(m, &out))

	assert.Equal(t, "confirm#k1", out.IdempotencyKey)
	assert.Equal(t, now.Add(24*time.Hour).Unix(), out.ExpiresAt)
}
