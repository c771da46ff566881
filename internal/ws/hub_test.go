package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishQueuesEnvelope(t *testing.T) {
	h := NewHub(nil)

	require.NoError(t, h.Publish(Message{Type: "allocation", Action: "product_placed", Data: map[string]int{"quantity": 10}}))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(<-h.Broadcast, &got))
	assert.Equal(t, "allocation", got["type"])
	assert.Equal(t, "product_placed", got["action"])
	assert.NotEmpty(t, got["sent_at"])
}

func TestHub_PublishReportsFullBuffer(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < broadcastBuffer; i++ {
		require.NoError(t, h.Publish(Message{Type: "allocation"}))
	}
	assert.ErrorIs(t, h.Publish(Message{Type: "allocation"}), ErrHubFull)
}

func TestHub_JoinAndLeaveAfterShutdownDoNotBlock(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	joined := make(chan bool, 1)
	go func() {
		joined <- h.Join(nil)
		h.Leave(nil)
	}()
	select {
	case ok := <-joined:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Join blocked on a stopped hub")
	}
	assert.Zero(t, h.ClientCount())
}
