package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()

	// Given no connection is registered
	req.False(registry.IsOnline(userID))

	// When the user connects once
	registry.Register(userID, "conn-1")

	// Then
	req.True(registry.IsOnline(userID))
	users, conns := registry.Stats()
	req.Equal(1, users)
	req.Equal(1, conns)
}

func TestRegistry_Deregister_Last_Connection_Reports_Offline_Once(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()

	// Given a user connected from two devices
	registry.Register(userID, "conn-1")
	registry.Register(userID, "conn-2")

	// When the first device disconnects
	// Then the user is still online
	req.False(registry.Deregister(userID, "conn-1"))
	req.True(registry.IsOnline(userID))

	// When the last device disconnects
	// Then exactly this removal reports the offline transition
	req.True(registry.Deregister(userID, "conn-2"))
	req.False(registry.IsOnline(userID))

	// And repeating the removal stays silent
	req.False(registry.Deregister(userID, "conn-2"))
}

func TestRegistry_Deregister_Unknown_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	req.False(registry.Deregister("ghost", "conn-1"))

	registry.Register("alice", "conn-1")
	req.False(registry.Deregister("alice", "conn-2"))
	req.True(registry.IsOnline("alice"))
}

func TestRegistry_Register_Same_Connection_Twice(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("alice", "conn-1")
	registry.Register("alice", "conn-1")

	_, conns := registry.Stats()
	req.Equal(1, conns)

	// A single deregister empties the set
	req.True(registry.Deregister("alice", "conn-1"))
}

func TestRegistry_OnlineSet_Is_Detached(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("alice", "conn-1")
	registry.Register("bob", "conn-2")

	snapshot := registry.OnlineSet()
	req.Len(snapshot, 2)
	req.Contains(snapshot, "alice")
	req.Contains(snapshot, "bob")

	// Mutating the registry afterwards must not leak into the snapshot
	registry.Deregister("bob", "conn-2")
	req.Contains(snapshot, "bob")
}

func TestRegistry_Concurrent_Churn(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()

	const devices = 64
	var wg sync.WaitGroup
	offline := make(chan bool, devices)

	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", n)
			registry.Register(userID, connID)
			registry.IsOnline(userID)
			offline <- registry.Deregister(userID, connID)
		}(i)
	}
	wg.Wait()
	close(offline)

	// Whatever the interleaving, the final state is offline and the
	// registry holds no leftover entries.
	req.False(registry.IsOnline(userID))
	users, conns := registry.Stats()
	req.Equal(0, users)
	req.Equal(0, conns)

	// The last removal in any interleaving sees the count reach zero,
	// so at least one goroutine observed the transition.
	transitions := 0
	for went := range offline {
		if went {
			transitions++
		}
	}
	req.GreaterOrEqual(transitions, 1)
}
