// Package relay forwards scene edits between connected clients.
//
// A single goroutine (Run) owns the client registry and the snapshot and
// handles inbound events one at a time in arrival order. Every public method
// enqueues an event and waits for the loop to finish handling it. Handlers
// never block on clients, because deliveries are non-blocking sends.
package relay

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/metrics"
	"github.com/james226/scene-relay/scene"
)

// ErrStopped is returned by calls that reach a relay whose loop has exited.
var ErrStopped = errors.New("relay stopped")

var errNilClient = errors.New("nil client")

// Publisher forwards accepted local edits to other relay instances.
// Publish must not block.
type Publisher interface {
	Publish(ev scene.EditEvent)
}

type Options struct {
	// Strict sends a rejected message back to the sender of an invalid edit.
	Strict bool

	// QueueSize is the inbox capacity. Default: 256
	QueueSize int

	Renderer  scene.Renderer
	Publisher Publisher
}

type eventKind int

const (
	kindConnect eventKind = iota
	kindDisconnect
	kindEdit
	kindRemoteEdit
	kindQuery
)

type event struct {
	kind      eventKind
	client    *Client
	edit      scene.EditEvent
	decodeErr error
	query     func()
	result    chan error
}

type Relay struct {
	inbox     chan event
	clients   map[string]*Client
	snapshot  *scene.Snapshot
	strict    bool
	renderer  scene.Renderer
	publisher Publisher
	log       zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

func New(opts Options) *Relay {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Relay{
		inbox:     make(chan event, opts.QueueSize),
		clients:   make(map[string]*Client),
		snapshot:  scene.NewSnapshot(),
		strict:    opts.Strict,
		renderer:  opts.Renderer,
		publisher: opts.Publisher,
		log:       logging.WithComponent("relay"),
		done:      make(chan struct{}),
	}
}

// SetPublisher installs the cross-instance publisher. Call before Run.
func (r *Relay) SetPublisher(p Publisher) {
	r.publisher = p
}

// Run processes events until ctx is done. On shutdown every registered
// client is closed and the registry is emptied.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info().Bool("strict", r.strict).Msg("relay started")
	for {
		select {
		case <-ctx.Done():
			closed := r.closeAll()
			r.stopOnce.Do(func() { close(r.done) })
			r.log.Info().Int("clients_closed", closed).Msg("relay stopped")
			return ctx.Err()
		case ev := <-r.inbox:
			ev.result <- r.handle(ev)
		}
	}
}

// Serve implements suture.Service.
func (r *Relay) Serve(ctx context.Context) error {
	return r.Run(ctx)
}

func (r *Relay) String() string {
	return "edit-relay"
}

func (r *Relay) handle(ev event) error {
	switch ev.kind {
	case kindConnect:
		r.onConnect(ev.client)
	case kindDisconnect:
		r.onDisconnect(ev.client)
	case kindEdit:
		if ev.decodeErr != nil {
			return r.reject(ev.client, "", ev.decodeErr, "local")
		}
		return r.onEdit(ev.client, ev.edit)
	case kindRemoteEdit:
		return r.onRemoteEdit(ev.edit)
	case kindQuery:
		ev.query()
	}
	return nil
}

// do enqueues ev and waits for the loop to handle it. ctx only bounds the
// wait for inbox space: once ev is queued it is always handled, so the caller
// waits for its outcome instead of reporting a failure that did not happen.
func (r *Relay) do(ctx context.Context, ev event) error {
	ev.result = make(chan error, 1)
	select {
	case r.inbox <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
	select {
	case err := <-ev.result:
		return err
	case <-r.done:
		return ErrStopped
	}
}

// Connect registers c.
func (r *Relay) Connect(ctx context.Context, c *Client) error {
	if c == nil {
		return errNilClient
	}
	return r.do(ctx, event{kind: kindConnect, client: c})
}

// Disconnect unregisters c. Disconnecting twice, or disconnecting nil, is a
// no-op.
func (r *Relay) Disconnect(ctx context.Context, c *Client) error {
	if c == nil {
		return nil
	}
	return r.do(ctx, event{kind: kindDisconnect, client: c})
}

// Edit applies ev on behalf of src and forwards it to every other client.
// src may be nil for edits that have no connected sender. Invalid edits
// return *scene.InvalidEventError.
func (r *Relay) Edit(ctx context.Context, src *Client, ev scene.EditEvent) error {
	return r.do(ctx, event{kind: kindEdit, client: src, edit: ev})
}

// EditJSON decodes an edit payload and handles it like Edit. A payload that
// does not decode is treated as an invalid edit.
func (r *Relay) EditJSON(ctx context.Context, src *Client, data []byte) error {
	var ev scene.EditEvent
	e := event{kind: kindEdit, client: src}
	if err := json.Unmarshal(data, &ev); err != nil {
		e.decodeErr = &scene.InvalidEventError{Reason: "malformed payload"}
	} else {
		e.edit = ev
	}
	return r.do(ctx, e)
}

// ApplyRemote handles an edit received from another relay instance. It is
// delivered to every local client and never published again.
func (r *Relay) ApplyRemote(ctx context.Context, ev scene.EditEvent) error {
	return r.do(ctx, event{kind: kindRemoteEdit, edit: ev})
}

// Snapshot returns the current last-write-wins entries ordered by target.
func (r *Relay) Snapshot(ctx context.Context) ([]scene.EditEvent, error) {
	out := make(chan []scene.EditEvent, 1)
	err := r.do(ctx, event{kind: kindQuery, query: func() {
		out <- r.snapshot.Entries()
	}})
	if err != nil {
		return nil, err
	}
	return <-out, nil
}

// ClientCount returns the number of registered clients.
func (r *Relay) ClientCount(ctx context.Context) (int, error) {
	out := make(chan int, 1)
	err := r.do(ctx, event{kind: kindQuery, query: func() {
		out <- len(r.clients)
	}})
	if err != nil {
		return 0, err
	}
	return <-out, nil
}

func (r *Relay) onConnect(c *Client) {
	if c == nil {
		return
	}
	others := r.sortedClients()
	peers := make([]Peer, 0, len(others))
	for _, other := range others {
		peers = append(peers, other.peer())
	}

	r.clients[c.id] = c
	metrics.ClientsConnected.Set(float64(len(r.clients)))
	r.log.Info().Str("client_id", c.id).Str("name", c.name).Int("clients", len(r.clients)).Msg("client connected")

	r.deliver(c, Message{
		Type: MessageTypeConnected,
		Data: Welcome{ClientID: c.id, Clients: peers, Snapshot: r.snapshot.Entries()},
	})
	if _, ok := r.clients[c.id]; !ok {
		return
	}
	r.broadcast(Message{Type: MessageTypeClientConnected, Data: c.peer()}, c)
}

func (r *Relay) onDisconnect(c *Client) {
	if c == nil {
		return
	}
	if _, ok := r.clients[c.id]; !ok {
		return
	}
	delete(r.clients, c.id)
	c.sender.Close()
	metrics.ClientsConnected.Set(float64(len(r.clients)))
	r.log.Info().Str("client_id", c.id).Int("clients", len(r.clients)).Msg("client disconnected")

	r.broadcast(Message{Type: MessageTypeClientDisconnected, Data: c.peer()}, nil)
}

func (r *Relay) onEdit(src *Client, ev scene.EditEvent) error {
	if err := ev.Validate(); err != nil {
		return r.reject(src, ev.Target, err, "local")
	}

	r.apply(ev)
	r.broadcast(Message{Type: MessageTypeUpdate, Data: ev}, src)
	metrics.EditsTotal.WithLabelValues("local", "accepted").Inc()

	if r.publisher != nil {
		r.publisher.Publish(ev)
	}
	return nil
}

func (r *Relay) onRemoteEdit(ev scene.EditEvent) error {
	if err := ev.Validate(); err != nil {
		metrics.EditsTotal.WithLabelValues("remote", "dropped").Inc()
		r.log.Warn().Err(err).Msg("dropping invalid remote edit")
		return err
	}

	r.apply(ev)
	r.broadcast(Message{Type: MessageTypeUpdate, Data: ev}, nil)
	metrics.EditsTotal.WithLabelValues("remote", "accepted").Inc()
	return nil
}

func (r *Relay) apply(ev scene.EditEvent) {
	r.snapshot.Apply(ev)
	if r.renderer == nil {
		return
	}
	if err := r.renderer.Update(ev); err != nil {
		r.log.Warn().Err(err).Str("target", ev.Target).Msg("renderer update failed")
	}
}

// reject drops an invalid edit. In strict mode the sender is told why.
func (r *Relay) reject(src *Client, target string, err error, origin string) error {
	logEvent := r.log.Debug().Err(err).Str("target", target)
	if src != nil {
		logEvent = logEvent.Str("client_id", src.id)
	}
	logEvent.Msg("edit rejected")

	if !r.strict {
		metrics.EditsTotal.WithLabelValues(origin, "dropped").Inc()
		return err
	}

	metrics.EditsTotal.WithLabelValues(origin, "rejected").Inc()
	if src != nil {
		if _, ok := r.clients[src.id]; ok {
			r.deliver(src, Message{
				Type: MessageTypeRejected,
				Data: Rejection{Target: target, Error: err.Error()},
			})
		}
	}
	return err
}

// broadcast delivers msg to every registered client except exclude.
// Clients whose connection has gone away are unregistered afterwards.
func (r *Relay) broadcast(msg Message, exclude *Client) {
	var gone []*Client
	for _, c := range r.sortedClients() {
		if exclude != nil && c.id == exclude.id {
			continue
		}
		if !r.send(c, msg) {
			gone = append(gone, c)
		}
	}
	for _, c := range gone {
		r.onDisconnect(c)
	}
}

// deliver sends to a single client, unregistering it if it has gone away.
func (r *Relay) deliver(c *Client, msg Message) {
	if !r.send(c, msg) {
		r.onDisconnect(c)
	}
}

// send reports false only when the client is gone.
func (r *Relay) send(c *Client, msg Message) bool {
	err := c.sender.Send(msg)
	switch {
	case err == nil:
		metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
		return true
	case errors.Is(err, ErrClientGone):
		metrics.DeliveriesTotal.WithLabelValues("gone").Inc()
		r.log.Debug().Str("client_id", c.id).Msg("client gone during delivery")
		return false
	default:
		metrics.DeliveriesTotal.WithLabelValues("dropped").Inc()
		r.log.Debug().Err(err).Str("client_id", c.id).Str("type", msg.Type).Msg("delivery dropped")
		return true
	}
}

func (r *Relay) sortedClients() []*Client {
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

func (r *Relay) closeAll() int {
	n := len(r.clients)
	for id, c := range r.clients {
		c.sender.Close()
		delete(r.clients, id)
	}
	metrics.ClientsConnected.Set(0)
	return n
}
