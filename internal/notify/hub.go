package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"nexus-chat/internal/presence"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	DefaultEmitBuffer   = 1024
	DefaultClientBuffer = 256
	presenceTimeout     = 5 * time.Second
)

type envelope struct {
	room  string
	frame []byte
	// except is skipped when delivering to room.
	except *Client
	// to, when set, receives the frame directly instead of a room.
	to *Client
	// member requires except to be subscribed to room, otherwise the frame is refused.
	member bool
}

type subscription struct {
	client *Client
	room   string
}

type eviction struct {
	userID uuid.UUID
	room   string
}

type presenceChange struct {
	userID uuid.UUID
	online bool
}

// Hub owns the room registry. Only the Run loop touches rooms and clients.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	join       chan subscription
	leave      chan eviction
	emit       chan envelope
	presence   chan presenceChange
	done       chan struct{}

	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	conns   map[uuid.UUID]int

	tracker      presence.Tracker
	log          *slog.Logger
	clientBuffer int
}

func NewHub(tracker presence.Tracker, log *slog.Logger, emitBuffer, clientBuffer int) *Hub {
	if emitBuffer <= 0 {
		emitBuffer = DefaultEmitBuffer
	}
	if clientBuffer <= 0 {
		clientBuffer = DefaultClientBuffer
	}
	return &Hub{
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		join:         make(chan subscription),
		leave:        make(chan eviction),
		emit:         make(chan envelope, emitBuffer),
		presence:     make(chan presenceChange, emitBuffer),
		done:         make(chan struct{}),
		clients:      make(map[*Client]struct{}),
		rooms:        make(map[string]map[*Client]struct{}),
		conns:        make(map[uuid.UUID]int),
		tracker:      tracker,
		log:          log,
		clientBuffer: clientBuffer,
	}
}

// Notify queues payload for every connection in room. It never blocks: when the
// queue is full the event is dropped.
func (h *Hub) Notify(room string, kind Kind, payload any) {
	frame, err := encode(kind, payload)
	if err != nil {
		h.log.Error("Failed to encode event", "event", kind, "room", room, "error", err)
		return
	}
	h.enqueue(envelope{room: room, frame: frame})
}

func (h *Hub) enqueue(e envelope) {
	select {
	case h.emit <- e:
	default:
		h.log.Warn("Emit queue full, event dropped", "room", e.room)
	}
}

func encode(kind Kind, payload any) ([]byte, error) {
	return json.Marshal(Event{Event: kind, Data: payload})
}

// Run processes registrations and events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	go h.presenceLoop(ctx)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.subscribe(client, UserRoom(client.userID))
			h.conns[client.userID]++
			if h.conns[client.userID] == 1 {
				h.queuePresence(client.userID, true)
			}
			if frame, err := encode(Connected, client.userID); err == nil {
				h.deliver(client, frame)
			}

		case client := <-h.unregister:
			h.drop(client)

		case sub := <-h.join:
			if _, ok := h.clients[sub.client]; ok {
				h.subscribe(sub.client, sub.room)
			}

		case ev := <-h.leave:
			h.unsubscribe(ev.userID, ev.room)

		case e := <-h.emit:
			h.dispatch(e)
		}
	}
}

// Register and Unregister hand a client to the loop. They return immediately once the hub stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Unsubscribe waits for the loop so that later events to room skip the user.
func (h *Hub) Unsubscribe(userID uuid.UUID, room string) {
	select {
	case h.leave <- eviction{userID: userID, room: room}:
	case <-h.done:
	}
}

func (h *Hub) subscribeTo(client *Client, room string) {
	select {
	case h.join <- subscription{client: client, room: room}:
	case <-h.done:
	}
}

func (h *Hub) dispatch(e envelope) {
	if e.to != nil {
		if _, ok := h.clients[e.to]; ok {
			h.deliver(e.to, e.frame)
		}
		return
	}
	subscribers := h.rooms[e.room]
	if e.member {
		if _, ok := subscribers[e.except]; !ok {
			if _, live := h.clients[e.except]; live {
				h.refuse(e.except, "join the chat before sending to it")
			}
			return
		}
	}
	for client := range subscribers {
		if client == e.except {
			continue
		}
		h.deliver(client, e.frame)
	}
}

// deliver hands a frame to the client, disconnecting it when its buffer is full.
func (h *Hub) deliver(client *Client, frame []byte) {
	select {
	case client.send <- frame:
	default:
		h.log.Warn("Slow client disconnected", "user_id", client.userID)
		h.drop(client)
	}
}

func (h *Hub) refuse(client *Client, msg string) {
	frame, err := encode(SocketError, ErrorPayload{Message: msg})
	if err == nil {
		h.deliver(client, frame)
	}
}

func (h *Hub) subscribe(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	if _, ok := members[client]; ok {
		return
	}
	members[client] = struct{}{}
	client.rooms = append(client.rooms, room)
}

func (h *Hub) unsubscribe(userID uuid.UUID, room string) {
	members := h.rooms[room]
	for client := range members {
		if client.userID != userID {
			continue
		}
		delete(members, client)
		client.rooms = lo.Without(client.rooms, room)
	}
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// drop removes a client from every room. Safe to call more than once.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for _, room := range client.rooms {
		members := h.rooms[room]
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.rooms = nil

	h.conns[client.userID]--
	if h.conns[client.userID] <= 0 {
		delete(h.conns, client.userID)
		h.queuePresence(client.userID, false)
	}
}

func (h *Hub) queuePresence(userID uuid.UUID, online bool) {
	if h.tracker == nil {
		return
	}
	select {
	case h.presence <- presenceChange{userID: userID, online: online}:
	default:
		h.log.Warn("Presence queue full, update dropped", "user_id", userID, "online", online)
	}
}

// presenceLoop applies presence changes in order, off the Run loop.
func (h *Hub) presenceLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-h.presence:
			h.applyPresence(ctx, change)
		}
	}
}

func (h *Hub) applyPresence(ctx context.Context, change presenceChange) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
	defer cancel()
	var err error
	if change.online {
		err = h.tracker.Online(ctx, change.userID)
	} else {
		err = h.tracker.Offline(ctx, change.userID)
	}
	if err != nil {
		h.log.Warn("Failed to update presence", "user_id", change.userID, "online", change.online, "error", err)
	}
}

func (h *Hub) refresh(userID uuid.UUID) {
	if h.tracker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.tracker.Refresh(ctx, userID); err != nil {
		h.log.Debug("Failed to refresh presence", "user_id", userID, "error", err)
	}
}

var _ Notifier = (*Hub)(nil)
