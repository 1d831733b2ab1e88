package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_SendAndWriteLoop(t *testing.T) {
	ft := newFakeTransport()
	conn := NewConnection("user-1", ft)
	conn.Start()

	require.NoError(t, conn.Send([]byte(`{"type":"ping"}`)))

	select {
	case payload := <-ft.frames:
		assert.JSONEq(t, `{"type":"ping"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("frame never written")
	}
}

func TestConnection_SlowConsumerClosed(t *testing.T) {
	ft := newFakeTransport()
	conn := NewConnection("user-1", ft)
	// Write loop intentionally not started, so the buffer only fills.

	var sendErr error
	for i := 0; i < defaultSendBuff+1; i++ {
		if sendErr = conn.Send([]byte(fmt.Sprintf(`{"n":%d}`, i))); sendErr != nil {
			break
		}
	}

	require.Error(t, sendErr)
	assert.True(t, conn.Closed())
	assert.Equal(t, CloseSlowConsumer, ft.sentCloseCode())
}

func TestConnection_CloseIdempotent(t *testing.T) {
	ft := newFakeTransport()
	conn := NewConnection("user-1", ft)

	conn.Close(CloseHeartbeatTimeout, "heartbeat timeout")
	conn.Close(CloseSlowConsumer, "send buffer full")

	assert.True(t, conn.Closed())
	// Only the first close reaches the transport.
	assert.Equal(t, CloseHeartbeatTimeout, ft.sentCloseCode())

	err := conn.Send([]byte("late"))
	assert.Error(t, err)
}
