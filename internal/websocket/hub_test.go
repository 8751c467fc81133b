package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is a test double for Client that captures sent messages
type mockClient struct {
	id           string
	userID       string
	subscription *Subscription
	messages     [][]byte
	mu           sync.Mutex
	closed       bool
	failSend     bool
}

func newMockClient(id string, userID string, entities ...EntityType) *mockClient {
	return &mockClient{
		id:           id,
		userID:       userID,
		subscription: NewSubscription(entities...),
		messages:     make([][]byte, 0),
	}
}

func (m *mockClient) Wants(event Event) bool {
	return m.subscription.Matches(event)
}

func (m *mockClient) ID() string {
	return m.id
}

func (m *mockClient) UserID() string {
	return m.userID
}

func (m *mockClient) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.failSend {
		return ErrClientClosed
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockClient) GetMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([][]byte, len(m.messages))
	copy(copied, m.messages)
	return copied
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()

	client1 := newMockClient("client-1", "user-a")
	client2 := newMockClient("client-2", "user-a")
	client3 := newMockClient("client-3", "user-b")

	hub.Register(client1)
	hub.Register(client2)
	hub.Register(client3)

	assert.Equal(t, 2, hub.ClientCount("user-a"))
	assert.Equal(t, 1, hub.ClientCount("user-b"))
	assert.Equal(t, 0, hub.ClientCount("nobody"))
	assert.Equal(t, 3, hub.TotalClientCount())

	hub.Unregister(client1)
	assert.Equal(t, 1, hub.ClientCount("user-a"))

	hub.Unregister(client2)
	hub.Unregister(client3)
	assert.Equal(t, 0, hub.ClientCount("user-a"))
	assert.Equal(t, 0, hub.ClientCount("user-b"))
}

func TestHub_Broadcast_UserIsolation(t *testing.T) {
	hub := NewHub()

	phone := newMockClient("phone", "user-a")
	laptop := newMockClient("laptop", "user-a")
	other := newMockClient("other", "user-b")

	hub.Register(phone)
	hub.Register(laptop)
	hub.Register(other)

	hub.Broadcast("user-a", BudgetAlert(false, map[string]interface{}{"budgetId": "b-1"}))

	assert.Eventually(t, func() bool {
		return len(phone.GetMessages()) == 1 && len(laptop.GetMessages()) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Len(t, other.GetMessages(), 0, "other user must not receive user-a's alerts")
}

func TestHub_Broadcast_RespectsSubscriptions(t *testing.T) {
	hub := NewHub()

	alertsOnly := newMockClient("widget", "user-a", EntityTypeBudget)
	everything := newMockClient("app", "user-a")
	hub.Register(alertsOnly)
	hub.Register(everything)

	hub.Broadcast("user-a", Transactions.Created(map[string]interface{}{"id": "t-1"}))
	hub.Broadcast("user-a", BudgetAlert(true, map[string]interface{}{"budgetId": "b-1"}))

	assert.Eventually(t, func() bool {
		return len(everything.GetMessages()) == 2 && len(alertsOnly.GetMessages()) == 1
	}, time.Second, 5*time.Millisecond)

	var event Event
	require.NoError(t, json.Unmarshal(alertsOnly.GetMessages()[0], &event))
	assert.Equal(t, "budget.exceeded", event.Type)
}

func TestHub_Broadcast_DropsFailingClient(t *testing.T) {
	hub := NewHub()

	broken := newMockClient("broken", "user-a")
	broken.failSend = true
	hub.Register(broken)

	hub.Broadcast("user-a", BudgetAlert(true, map[string]interface{}{"budgetId": "b-1"}))

	assert.Eventually(t, func() bool {
		return hub.ClientCount("user-a") == 0 && broken.IsClosed()
	}, time.Second, 5*time.Millisecond)
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	clientCount := 50

	clients := make([]*mockClient, clientCount)
	for i := 0; i < clientCount; i++ {
		clients[i] = newMockClient(fmt.Sprintf("client-%d", i), fmt.Sprintf("user-%d", i%5))
	}

	for i := 0; i < clientCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			hub.Register(clients[idx])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, clientCount, hub.TotalClientCount())

	for i := 0; i < clientCount; i++ {
		wg.Add(2)
		go func(idx int) {
			defer wg.Done()
			hub.Broadcast(fmt.Sprintf("user-%d", idx%5), Transactions.Created(map[string]interface{}{"id": idx}))
		}(i)
		go func(idx int) {
			defer wg.Done()
			hub.Unregister(clients[idx])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.TotalClientCount())
}

func TestHub_UnregisterNonexistent(t *testing.T) {
	hub := NewHub()

	require.NotPanics(t, func() {
		hub.Unregister(newMockClient("client-1", "user-a"))
	})
}

func TestHub_BroadcastToUserWithoutClients(t *testing.T) {
	hub := NewHub()

	require.NotPanics(t, func() {
		hub.Broadcast("nobody", Transactions.Created(map[string]interface{}{"id": "t-1"}))
	})
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub()

	a := newMockClient("a", "user-a")
	b := newMockClient("b", "user-b")
	hub.Register(a)
	hub.Register(b)

	hub.Shutdown()

	assert.Equal(t, 0, hub.TotalClientCount())
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
}
