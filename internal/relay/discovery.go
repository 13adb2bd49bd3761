package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// StaticDiscoverer returns a fixed node list.
type StaticDiscoverer []Node

// Discover implements Discoverer.
func (s StaticDiscoverer) Discover(context.Context, string) ([]Node, error) {
	out := make([]Node, len(s))
	copy(out, s)
	return out, nil
}

// MDNSDiscoverer browses _<capability>._tcp services on the local network.
// Every node found this way is nearby.
type MDNSDiscoverer struct {
	Domain  string
	Timeout time.Duration
}

// Discover implements Discoverer.
func (m MDNSDiscoverer) Discover(ctx context.Context, capability string) ([]Node, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create resolver: %w", err)
	}
	domain := m.Domain
	if domain == "" {
		domain = "local."
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Node, 1)
	go func() {
		var nodes []Node
		for entry := range entries {
			nodes = append(nodes, nodeFromEntry(entry))
		}
		done <- nodes
	}()

	if err := resolver.Browse(browseCtx, serviceType(capability), domain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", serviceType(capability), err)
	}
	<-browseCtx.Done()
	nodes := <-done
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func serviceType(capability string) string {
	return "_" + capability + "._tcp"
}

func nodeFromEntry(entry *zeroconf.ServiceEntry) Node {
	node := Node{ID: entry.Instance, Name: entry.HostName, Nearby: true}
	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "node":
			if value != "" {
				node.ID = value
			}
		case "name":
			if value != "" {
				node.Name = value
			}
		}
	}
	return node
}

// MultiDiscoverer merges several discoverers. A node reported by any of them
// as nearby is nearby. Errors are only returned when every discoverer fails.
type MultiDiscoverer []Discoverer

// Discover implements Discoverer.
func (m MultiDiscoverer) Discover(ctx context.Context, capability string) ([]Node, error) {
	var (
		merged []Node
		index  = make(map[string]int)
		errs   []error
	)
	for _, d := range m {
		nodes, err := d.Discover(ctx, capability)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, n := range nodes {
			if i, ok := index[n.ID]; ok {
				merged[i].Nearby = merged[i].Nearby || n.Nearby
				continue
			}
			index[n.ID] = len(merged)
			merged = append(merged, n)
		}
	}
	if len(errs) > 0 && len(errs) == len(m) {
		return nil, errors.Join(errs...)
	}
	return merged, nil
}
