package chain

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// MultiNodeClient fails over between several node endpoints. The active
// endpoint rotates after failThreshold consecutive failures, and every call
// walks the list at most once before giving up with the last error.
type MultiNodeClient struct {
	clients       []*NodeClient
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiNodeClient(endpoints []string, failThreshold int) (*MultiNodeClient, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("node endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	clients := make([]*NodeClient, 0, len(list))
	for _, ep := range list {
		clients = append(clients, NewNodeClient(ep))
	}
	return &MultiNodeClient{
		clients:       clients,
		failThreshold: failThreshold,
	}, nil
}

func (m *MultiNodeClient) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index].baseURL
}

func (m *MultiNodeClient) BlockCount(ctx context.Context) (int64, error) {
	var out int64
	err := m.do(ctx, func(ctx context.Context, c *NodeClient) error {
		v, err := c.BlockCount(ctx)
		out = v
		return err
	})
	return out, err
}

func (m *MultiNodeClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := m.do(ctx, func(ctx context.Context, c *NodeClient) error {
		v, err := c.Balance(ctx)
		out = v
		return err
	})
	return out, err
}

func (m *MultiNodeClient) SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	var out string
	err := m.do(ctx, func(ctx context.Context, c *NodeClient) error {
		v, err := c.SendToAddress(ctx, address, amount)
		out = v
		return err
	})
	return out, err
}

func (m *MultiNodeClient) do(ctx context.Context, call func(context.Context, *NodeClient) error) error {
	var lastErr error
	for attempts := 0; attempts < len(m.clients); attempts++ {
		client, idx := m.currentClient()
		err := call(ctx, client)
		if err == nil {
			m.resetFailures(idx)
			return nil
		}
		lastErr = err

		// An answer from the node is not an endpoint failure; it would
		// come back the same from every endpoint.
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return err
		}

		m.noteFailure(idx)
		if m.shouldRotate() || len(m.clients) > 1 {
			m.rotate()
		}
	}
	return lastErr
}

func (m *MultiNodeClient) currentClient() (*NodeClient, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiNodeClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

func (m *MultiNodeClient) noteFailure(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount++
	}
}

func (m *MultiNodeClient) shouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failCount >= m.failThreshold
}

func (m *MultiNodeClient) rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
