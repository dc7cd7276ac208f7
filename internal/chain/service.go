package chain

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrNotConnected = errors.New("payout service not connected")

type nodeAPI interface {
	BlockCount(ctx context.Context) (int64, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error)
}

// Service is the node-backed payout service. It is constructed explicitly
// and handed to the order engine; Connect must succeed before balance or
// transfer calls are served.
type Service struct {
	node    nodeAPI
	network string

	mu    sync.Mutex
	ready bool
}

func NewService(node nodeAPI, network string) *Service {
	return &Service{node: node, network: network}
}

// Connect verifies the node answers and marks the service ready.
func (s *Service) Connect(ctx context.Context) error {
	if _, err := s.node.BlockCount(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Service) ValidateAddress(address string) ValidationResult {
	return ValidateAddress(address, s.network)
}

func (s *Service) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	if !s.Ready() {
		return decimal.Decimal{}, ErrNotConnected
	}
	return s.node.Balance(ctx)
}

func (s *Service) Transfer(ctx context.Context, toAddress string, amount decimal.Decimal, userID string) (TransferResult, error) {
	if !s.Ready() {
		return TransferResult{}, ErrNotConnected
	}

	txid, err := s.node.SendToAddress(ctx, toAddress, amount)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return TransferResult{Err: rpcErr.Message}, nil
		}
		return TransferResult{}, err
	}
	return TransferResult{Success: true, TxHash: txid}, nil
}
