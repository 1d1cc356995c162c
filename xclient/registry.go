package xclient

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ConnectorFactory builds a Connector from a generic config map.
type ConnectorFactory func(cfg map[string]any) (Connector, error)

// ErrUnknownConnector is returned by NewConnector for a name nothing registered.
type ErrUnknownConnector struct{ name string }

func (e ErrUnknownConnector) Error() string { return fmt.Sprintf("unknown connector: %s", e.name) }

var (
	connectorRegistryMu sync.RWMutex
	connectorRegistry   = map[string]ConnectorFactory{}
)

// RegisterConnector makes a connector constructible by name. Adapters call
// it from init(); a later registration under the same name replaces the
// earlier one.
func RegisterConnector(name string, factory ConnectorFactory) error {
	if name == "" {
		return errors.New("connector name must not be empty")
	}
	if factory == nil {
		return errors.New("connector factory must not be nil")
	}
	connectorRegistryMu.Lock()
	connectorRegistry[name] = factory
	connectorRegistryMu.Unlock()
	return nil
}

// NewConnector builds the connector registered under name.
func NewConnector(name string, cfg map[string]any) (Connector, error) {
	connectorRegistryMu.RLock()
	f, ok := connectorRegistry[name]
	connectorRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownConnector{name: name}
	}
	return f(cfg)
}

// Connectors lists registered connector names in sorted order.
func Connectors() []string {
	connectorRegistryMu.RLock()
	out := make([]string, 0, len(connectorRegistry))
	for name := range connectorRegistry {
		out = append(out, name)
	}
	connectorRegistryMu.RUnlock()
	sort.Strings(out)
	return out
}
