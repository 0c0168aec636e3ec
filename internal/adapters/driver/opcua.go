package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/grillbaer/data-logger/internal/ports"
)

// OPCUA reads one temperature node from an OPC UA server, for sensors that
// are reachable over the network instead of a local bus. The session is
// opened lazily and dropped on any fault so the next poll reconnects.
type OPCUA struct {
	Endpoint string
	NodeID   string

	nodeID *ua.NodeID

	mu     sync.Mutex
	client *opcua.Client
}

func NewOPCUA(endpoint, nodeID string) (*OPCUA, error) {
	id, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return nil, fmt.Errorf("opcua: parse node id %q: %w", nodeID, err)
	}
	return &OPCUA{Endpoint: endpoint, NodeID: nodeID, nodeID: id}, nil
}

func (o *OPCUA) Read(ctx context.Context) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	client, err := o.connectLocked(ctx)
	if err != nil {
		return 0, err
	}

	resp, err := client.Read(ctx, &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{
			{NodeID: o.nodeID, AttributeID: ua.AttributeIDValue},
		},
	})
	if err != nil {
		o.dropLocked(ctx)
		return 0, fmt.Errorf("opcua read %s: %w", o.NodeID, err)
	}
	if len(resp.Results) == 0 {
		o.dropLocked(ctx)
		return 0, fmt.Errorf("opcua read %s: empty result", o.NodeID)
	}
	result := resp.Results[0]
	if result.Status != ua.StatusOK {
		return 0, fmt.Errorf("opcua read %s: status %s", o.NodeID, result.Status)
	}

	value, ok := variantToFloat(result.Value)
	if !ok {
		return 0, fmt.Errorf("opcua read %s: unsupported value type", o.NodeID)
	}
	return value, nil
}

func (o *OPCUA) Name() string { return "opcua " + o.NodeID }

// Close releases the session, if any.
func (o *OPCUA) Close(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropLocked(ctx)
}

var _ ports.Driver = (*OPCUA)(nil)

func (o *OPCUA) connectLocked(ctx context.Context) (*opcua.Client, error) {
	if o.client != nil {
		return o.client, nil
	}

	client, err := opcua.NewClient(o.Endpoint,
		opcua.SecurityModeString("None"),
		opcua.SecurityPolicy("None"),
		opcua.AuthAnonymous(),
	)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect %s: %w", o.Endpoint, err)
	}
	o.client = client
	return client, nil
}

func (o *OPCUA) dropLocked(ctx context.Context) {
	if o.client == nil {
		return
	}
	_ = o.client.Close(ctx)
	o.client = nil
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
