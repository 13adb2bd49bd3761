// Package relay pushes a condensed snapshot to companion wearable devices.
//
// Nodes are discovered per capability name, nearby nodes are preferred, and
// the message is sent fire-and-forget on the /data path. Delivery failures
// are logged and dropped.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/state"
)

const (
	// DefaultCapability is the name companion devices advertise.
	DefaultCapability = "medaka-wear"
	// DataPath is the message path carrying snapshot updates.
	DataPath = "/data"
)

// ErrNoNode is returned when no reachable node advertises the capability.
var ErrNoNode = errors.New("no reachable node")

// Node is a reachable companion device.
type Node struct {
	ID     string
	Name   string
	Nearby bool
}

// Message is the condensed snapshot sent to a node.
type Message struct {
	LastSG     string  `json:"lastSG"`
	LastSGDiff string  `json:"lastSGDiff"`
	LastSGTime *string `json:"lastSGTime"`
}

// Condense derives the wearable message from a snapshot.
func Condense(snap *carelink.Snapshot, zeroMarker string) Message {
	msg := Message{
		LastSG:     snap.LastText() + snap.TrendArrow(),
		LastSGDiff: snap.LastDeltaText(zeroMarker),
	}
	if t, ok := snap.LastTimeText(); ok {
		msg.LastSGTime = &t
	}
	return msg
}

// Discoverer finds nodes advertising a capability.
type Discoverer interface {
	Discover(ctx context.Context, capability string) ([]Node, error)
}

// Messenger delivers a payload to one node.
type Messenger interface {
	Send(ctx context.Context, node Node, path string, payload []byte) error
}

// PickNode returns the first nearby node, or the first node when none is
// nearby.
func PickNode(nodes []Node) (Node, bool) {
	if len(nodes) == 0 {
		return Node{}, false
	}
	ranked := make([]Node, len(nodes))
	copy(ranked, nodes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Nearby && !ranked[j].Nearby
	})
	return ranked[0], true
}

// Options configure a Relay.
type Options struct {
	Capability string
	ZeroMarker string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Relay sends snapshots to the best reachable node.
type Relay struct {
	discoverer Discoverer
	messenger  Messenger
	capability string
	zeroMarker string
	timeout    time.Duration
	logger     *slog.Logger
}

// New builds a Relay.
func New(discoverer Discoverer, messenger Messenger, opts Options) *Relay {
	r := &Relay{
		discoverer: discoverer,
		messenger:  messenger,
		capability: opts.Capability,
		zeroMarker: opts.ZeroMarker,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
	if r.capability == "" {
		r.capability = DefaultCapability
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Relay sends snap to the preferred node. The returned error is for callers
// that want it; Run only logs it.
func (r *Relay) Relay(ctx context.Context, snap *carelink.Snapshot) error {
	if snap == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	nodes, err := r.discoverer.Discover(ctx, r.capability)
	if err != nil {
		return fmt.Errorf("discover nodes: %w", err)
	}
	node, ok := PickNode(nodes)
	if !ok {
		return ErrNoNode
	}
	payload, err := json.Marshal(Condense(snap, r.zeroMarker))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.messenger.Send(ctx, node, DataPath, payload); err != nil {
		return fmt.Errorf("send to %s: %w", node.ID, err)
	}
	r.logger.Debug("relayed snapshot", "node", node.ID, "nearby", node.Nearby)
	return nil
}

// Run relays every snapshot received on events until ctx is done or events
// is closed. Subscribe before publishing anything that must be relayed.
func (r *Relay) Run(ctx context.Context, events <-chan state.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Snapshot == nil {
				continue
			}
			if err := r.Relay(ctx, ev.Snapshot); err != nil {
				r.logger.Info("wearable relay skipped", "error", err)
			}
		}
	}
}
