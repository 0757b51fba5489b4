package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastChangeEnqueuesEvent(t *testing.T) {
	hub := NewHub()

	hub.BroadcastChange("tasks", "created", 42)

	select {
	case message := <-hub.Broadcast:
		var event ChangeEvent
		require.NoError(t, json.Unmarshal(message, &event))
		assert.Equal(t, "tasks", event.Table)
		assert.Equal(t, "created", event.Action)
		assert.Equal(t, 42, event.ID)
	default:
		t.Fatal("Expected event in broadcast channel")
	}
}

func TestBroadcastChangeNilHub(t *testing.T) {
	// Hub nil tidak boleh panic: handler memanggil BroadcastChange tanpa
	// memeriksa apakah hub sudah diinisialisasi
	var hub *Hub
	hub.BroadcastChange("notifications", "created", 1)
}

func TestBroadcastChangeDropsWhenFull(t *testing.T) {
	hub := NewHub()

	// Isi buffer sampai penuh, lalu satu lagi; tidak boleh memblokir
	for i := 0; i < cap(hub.Broadcast)+10; i++ {
		hub.BroadcastChange("tasks", "updated", i)
	}
	assert.Equal(t, cap(hub.Broadcast), len(hub.Broadcast))
}

func TestRunDrainsBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hub.BroadcastChange("tasks", "created", 1)

	assert.Eventually(t, func() bool {
		return len(hub.Broadcast) == 0
	}, time.Second, 10*time.Millisecond, "broadcast should be drained by Run")
}
