package blockchain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/solverhq/rebalancer/pkg/logger"
)

const receiptPollInterval = 3 * time.Second

// EVMSigner is an ethclient-backed Signer for a single EOA key across
// multiple chains. Nonces come from the node's pending pool on every
// submission; the per-wallet signing queue guarantees submissions for one
// (wallet, chain) never overlap, so pending-nonce reads cannot race.
type EVMSigner struct {
	clients       map[int]*ethclient.Client
	key           *ecdsa.PrivateKey
	address       common.Address
	gasMultiplier float64
	logger        logger.Logger
}

// NewEVMSigner connects to every configured RPC endpoint and derives the
// wallet address from the private key.
func NewEVMSigner(rpcURLs map[int]string, privateKeyHex string, gasMultiplier float64, log logger.Logger) (*EVMSigner, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}

	clients := make(map[int]*ethclient.Client, len(rpcURLs))
	for chainID, rpcURL := range rpcURLs {
		client, err := ethclient.Dial(rpcURL)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to connect to chain %d", chainID)
		}
		clients[chainID] = client
	}

	if gasMultiplier <= 0 {
		gasMultiplier = 1.1
	}

	return &EVMSigner{
		clients:       clients,
		key:           key,
		address:       crypto.PubkeyToAddress(key.PublicKey),
		gasMultiplier: gasMultiplier,
		logger:        log,
	}, nil
}

func (s *EVMSigner) Address() common.Address {
	return s.address
}

func (s *EVMSigner) client(chainID int) (*ethclient.Client, error) {
	client, ok := s.clients[chainID]
	if !ok {
		return nil, errors.Errorf("no RPC client configured for chain %d", chainID)
	}
	return client, nil
}

// Execute submits the calls in order, waiting for each receipt before the
// next call, and returns the hash of the final transaction. Later calls in a
// batch depend on the on-chain effects of earlier ones (an approval followed
// by a burn), so ordered confirmation is required for correctness.
func (s *EVMSigner) Execute(ctx context.Context, chainID int, calls []Call) (common.Hash, error) {
	if len(calls) == 0 {
		return common.Hash{}, errors.New("empty call batch")
	}

	var last common.Hash
	for i, call := range calls {
		hash, err := s.SendTransaction(ctx, chainID, TxParams{To: call.To, Data: call.Data, Value: call.Value})
		if err != nil {
			return common.Hash{}, errors.Wrapf(err, "batch call %d/%d failed", i+1, len(calls))
		}

		receipt, err := s.WaitForReceipt(ctx, chainID, hash)
		if err != nil {
			return common.Hash{}, errors.Wrapf(err, "batch call %d/%d not confirmed", i+1, len(calls))
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return common.Hash{}, errors.Errorf("batch call %d/%d reverted: %s", i+1, len(calls), hash.Hex())
		}
		last = hash
	}
	return last, nil
}

func (s *EVMSigner) SendTransaction(ctx context.Context, chainID int, params TxParams) (common.Hash, error) {
	client, err := s.client(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to get pending nonce")
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to get gas price")
	}
	gasPrice = applyMultiplier(gasPrice, s.gasMultiplier)

	value := params.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit, err := client.EstimateGas(ctx, callMsg(s.address, params.To, params.Data, value))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to estimate gas")
	}
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &params.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     params.Data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(int64(chainID))), s.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to sign transaction")
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to broadcast transaction")
	}

	s.logger.DebugWithChain(chainID, "Submitted transaction %s (nonce %d)", signedTx.Hash().Hex(), nonce)
	return signedTx.Hash(), nil
}

func (s *EVMSigner) WriteContract(ctx context.Context, chainID int, params WriteParams) (common.Hash, error) {
	data, err := params.ABI.Pack(params.Method, params.Args...)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "failed to pack %s call", params.Method)
	}
	return s.SendTransaction(ctx, chainID, TxParams{To: params.Address, Data: data})
}

// WaitForReceipt polls for the transaction receipt until it appears or the
// context is cancelled.
func (s *EVMSigner) WaitForReceipt(ctx context.Context, chainID int, hash common.Hash) (*types.Receipt, error) {
	client, err := s.client(chainID)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "gave up waiting for receipt %s", hash.Hex())
		case <-ticker.C:
		}
	}
}

func callMsg(from, to common.Address, data []byte, value *big.Int) ethereum.CallMsg {
	return ethereum.CallMsg{From: from, To: &to, Data: data, Value: value}
}

func applyMultiplier(gasPrice *big.Int, multiplier float64) *big.Int {
	scaled := new(big.Float).Mul(new(big.Float).SetInt(gasPrice), big.NewFloat(multiplier))
	result := new(big.Int)
	scaled.Int(result)
	return result
}
