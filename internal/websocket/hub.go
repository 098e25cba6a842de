package websocket

import "sync"

// CreditUpdate is pushed to a user's connected clients after every committed
// ledger operation that touched their account.
type CreditUpdate struct {
	AvailableCredits int64 `json:"available_credits"`
	LockedCredits    int64 `json:"locked_credits"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// BroadcastCredits queues the snapshot for every client subscribed to the
// user. Clients that cannot keep up miss intermediate snapshots, never the
// latest balances.
func (h *Hub) BroadcastCredits(userID string, update CreditUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- update:
		default:
		}
	}
}
