package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueuePublishRecordsMessages(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx := context.Background()

	data := []byte(`{"parsingSessionId":"abc"}`)
	require.NoError(t, q.Publish(ctx, data, map[string]string{"distributorCode": "drakkar"}))

	// Mutating the caller's slice must not change the captured message.
	data[0] = 'X'

	msgs := q.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, byte('{'), msgs[0].Data[0])
	require.Equal(t, "drakkar", msgs[0].Attributes["distributorCode"])
}

func TestQueueFailNext(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx := context.Background()
	boom := errors.New("broker unavailable")

	q.FailNext(boom)
	require.ErrorIs(t, q.Publish(ctx, []byte("x"), nil), boom)

	// The failure is one-shot.
	require.NoError(t, q.Publish(ctx, []byte("x"), nil))
	require.Len(t, q.Messages(), 1)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	require.NoError(t, q.Close())
	require.Error(t, q.Publish(context.Background(), []byte("x"), nil))
}
