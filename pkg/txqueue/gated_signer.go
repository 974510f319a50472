package txqueue

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/solverhq/rebalancer/pkg/blockchain"
)

// GatedSigner decorates a blockchain.Signer so that Execute, SendTransaction
// and WriteContract for the same (wallet, chain) are serialized through a
// SigningQueue. Read-only members pass through untouched. An Execute batch
// holds its slot for the whole batch, so no foreign transaction can land
// between an approval and the call that spends it.
type GatedSigner struct {
	inner blockchain.Signer
	queue *SigningQueue
}

var _ blockchain.Signer = (*GatedSigner)(nil)

// NewGatedSigner wraps inner with per-(wallet, chain) serialization.
func NewGatedSigner(inner blockchain.Signer, queue *SigningQueue) *GatedSigner {
	return &GatedSigner{inner: inner, queue: queue}
}

func (g *GatedSigner) Address() common.Address {
	return g.inner.Address()
}

func (g *GatedSigner) Execute(ctx context.Context, chainID int, calls []blockchain.Call) (common.Hash, error) {
	var hash common.Hash
	err := g.queue.Enqueue(ctx, g.inner.Address(), chainID, func() error {
		var err error
		hash, err = g.inner.Execute(ctx, chainID, calls)
		return err
	})
	return hash, err
}

func (g *GatedSigner) SendTransaction(ctx context.Context, chainID int, tx blockchain.TxParams) (common.Hash, error) {
	var hash common.Hash
	err := g.queue.Enqueue(ctx, g.inner.Address(), chainID, func() error {
		var err error
		hash, err = g.inner.SendTransaction(ctx, chainID, tx)
		return err
	})
	return hash, err
}

func (g *GatedSigner) WriteContract(ctx context.Context, chainID int, params blockchain.WriteParams) (common.Hash, error) {
	var hash common.Hash
	err := g.queue.Enqueue(ctx, g.inner.Address(), chainID, func() error {
		var err error
		hash, err = g.inner.WriteContract(ctx, chainID, params)
		return err
	})
	return hash, err
}

// WaitForReceipt is a read-only operation and is not serialized.
func (g *GatedSigner) WaitForReceipt(ctx context.Context, chainID int, hash common.Hash) (*types.Receipt, error) {
	return g.inner.WaitForReceipt(ctx, chainID, hash)
}
