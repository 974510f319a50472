package lifi

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/solverhq/rebalancer/pkg/blockchain"
	"github.com/solverhq/rebalancer/pkg/logger"
)

// SignerRouteExecutor replays route steps through the wallet-gated signer,
// one step at a time, confirming each before the next. Steps carry the
// aggregator's prepared call data untouched.
type SignerRouteExecutor struct {
	signer blockchain.Signer
	logger logger.Logger
}

var _ RouteExecutor = (*SignerRouteExecutor)(nil)

// NewSignerRouteExecutor creates an executor bound to the given signer.
func NewSignerRouteExecutor(signer blockchain.Signer, log logger.Logger) *SignerRouteExecutor {
	return &SignerRouteExecutor{signer: signer, logger: log}
}

func (e *SignerRouteExecutor) ExecuteRoute(ctx context.Context, route Route) (common.Hash, error) {
	if len(route.Steps) == 0 {
		return common.Hash{}, errors.New("route has no steps")
	}

	var last common.Hash
	for i, step := range route.Steps {
		tx, err := stepTxParams(step)
		if err != nil {
			return common.Hash{}, errors.Wrapf(err, "route %s step %d", route.ID, i+1)
		}

		hash, err := e.signer.SendTransaction(ctx, step.TransactionRequest.ChainID, tx)
		if err != nil {
			return common.Hash{}, errors.Wrapf(err, "route %s step %d (%s) failed", route.ID, i+1, step.Tool)
		}

		receipt, err := e.signer.WaitForReceipt(ctx, step.TransactionRequest.ChainID, hash)
		if err != nil {
			return common.Hash{}, errors.Wrapf(err, "route %s step %d not confirmed", route.ID, i+1)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return common.Hash{}, errors.Errorf("route %s step %d reverted: %s", route.ID, i+1, hash.Hex())
		}

		e.logger.DebugWithChain(step.TransactionRequest.ChainID, "Route %s step %d/%d confirmed: %s",
			route.ID, i+1, len(route.Steps), hash.Hex())
		last = hash
	}
	return last, nil
}

func stepTxParams(step Step) (blockchain.TxParams, error) {
	data, err := hexutil.Decode(step.TransactionRequest.Data)
	if err != nil {
		return blockchain.TxParams{}, errors.Wrap(err, "invalid step call data")
	}

	value := big.NewInt(0)
	if v := step.TransactionRequest.Value; v != "" {
		var ok bool
		if strings.HasPrefix(v, "0x") {
			value, ok = new(big.Int).SetString(v[2:], 16)
		} else {
			value, ok = new(big.Int).SetString(v, 10)
		}
		if !ok {
			return blockchain.TxParams{}, errors.Errorf("invalid step value %q", v)
		}
	}

	return blockchain.TxParams{
		To:    common.HexToAddress(step.TransactionRequest.To),
		Data:  data,
		Value: value,
	}, nil
}
