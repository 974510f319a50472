package blockchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call is a single contract call inside an execute batch.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// TxParams describes a raw transaction submission.
type TxParams struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// WriteParams describes a single contract write.
type WriteParams struct {
	Address common.Address
	ABI     *abi.ABI
	Method  string
	Args    []interface{}
}

// Signer is the opaque wallet client the rebalancing engine submits
// transactions through. Implementations own key material, nonce handling and
// gas pricing; callers own serialization (see pkg/txqueue) and retries.
type Signer interface {
	// Address returns the wallet address this signer signs for.
	Address() common.Address

	// Execute submits a batch of calls for the given chain and returns the
	// hash of the final transaction. Smart-wallet deployments submit the
	// batch atomically; the EOA signer degrades to ordered submission,
	// confirming each call before the next.
	Execute(ctx context.Context, chainID int, calls []Call) (common.Hash, error)

	// SendTransaction submits a single raw transaction without waiting for
	// confirmation.
	SendTransaction(ctx context.Context, chainID int, tx TxParams) (common.Hash, error)

	// WriteContract packs and submits a contract call without waiting for
	// confirmation.
	WriteContract(ctx context.Context, chainID int, params WriteParams) (common.Hash, error)

	// WaitForReceipt blocks until the transaction is mined or ctx is done.
	WaitForReceipt(ctx context.Context, chainID int, hash common.Hash) (*types.Receipt, error)
}
