package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// ChainClient is the subset of the JSON-RPC client used for deployments.
// It is satisfied by *ethclient.Client and the simulated backend client.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// ProviderOptions tunes confirmation polling.
type ProviderOptions struct {
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
}

// EthProvider deploys contracts by signing CREATE transactions with a single
// key and polling for their receipts.
type EthProvider struct {
	client  ChainClient
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	encoder usecase.ArgumentEncoder
	opts    ProviderOptions
	log     *slog.Logger

	// mu serializes nonce allocation and submission
	mu    sync.Mutex
	nonce *uint64
}

// NewEthProvider creates a provider for the given chain.
func NewEthProvider(
	client ChainClient,
	key *ecdsa.PrivateKey,
	chainID *big.Int,
	encoder usecase.ArgumentEncoder,
	opts ProviderOptions,
	log *slog.Logger,
) *EthProvider {
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &EthProvider{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		encoder: encoder,
		opts:    opts,
		log:     log.With("component", "EthProvider"),
	}
}

// ChainID returns the chain this provider submits to.
func (p *EthProvider) ChainID() uint64 {
	return p.chainID.Uint64()
}

// Sender returns the deployer address.
func (p *EthProvider) Sender() common.Address {
	return p.from
}

// Deploy signs and sends a contract creation transaction at the sender's next nonce.
func (p *EthProvider) Deploy(ctx context.Context, artifact *domain.Artifact, args []any) (domain.Submission, error) {
	data, err := p.encoder.EncodeConstructor(artifact, args)
	if err != nil {
		return domain.Submission{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	nonce, err := p.nextNonce(ctx)
	if err != nil {
		return domain.Submission{}, err
	}

	gas, err := p.client.EstimateGas(ctx, ethereum.CallMsg{From: p.from, Data: data})
	if err != nil {
		return domain.Submission{}, fmt.Errorf("failed to estimate gas for %s: %w", artifact.Name, classify(err))
	}
	gas += gas / 5

	tx, err := p.buildTx(ctx, nonce, gas, data)
	if err != nil {
		return domain.Submission{}, err
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(p.chainID), p.key)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.client.SendTransaction(ctx, signed); err != nil {
		// The node may or may not have accepted it; refetch next time.
		p.nonce = nil
		return domain.Submission{}, fmt.Errorf("failed to send transaction: %w", classify(err))
	}

	next := nonce + 1
	p.nonce = &next

	sub := domain.Submission{
		Address: crypto.CreateAddress(p.from, nonce),
		TxHash:  signed.Hash(),
		Nonce:   nonce,
	}
	p.log.Debug("submitted deployment",
		"artifact", artifact.Name,
		"tx", sub.TxHash.Hex(),
		"address", sub.Address.Hex(),
		"nonce", nonce,
		"gas", gas,
	)
	return sub, nil
}

func (p *EthProvider) nextNonce(ctx context.Context) (uint64, error) {
	if p.nonce != nil {
		return *p.nonce, nil
	}
	nonce, err := p.client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce for %s: %w", p.from.Hex(), classify(err))
	}
	return nonce, nil
}

// buildTx prefers a dynamic fee transaction when the chain reports a base fee.
func (p *EthProvider) buildTx(ctx context.Context, nonce, gas uint64, data []byte) (*types.Transaction, error) {
	head, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", classify(err))
	}

	if head.BaseFee != nil {
		tip, err := p.client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas tip: %w", classify(err))
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   p.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			Value:     new(big.Int),
			Data:      data,
		}), nil
	}

	price, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", classify(err))
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		Value:    new(big.Int),
		Data:     data,
	}), nil
}

// WaitForConfirmation polls for the receipt until it is mined or the
// confirmation timeout elapses.
func (p *EthProvider) WaitForConfirmation(ctx context.Context, txHash common.Hash) (*domain.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.opts.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(waitCtx, txHash)
		switch {
		case err == nil:
			return p.confirm(waitCtx, receipt)
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case waitCtx.Err() == nil:
			return nil, fmt.Errorf("failed to get receipt for %s: %w", txHash.Hex(), classify(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: transaction %s not confirmed within %s",
				domain.ErrTimeout, txHash.Hex(), p.opts.ConfirmationTimeout)
		case <-ticker.C:
		}
	}
}

func (p *EthProvider) confirm(ctx context.Context, receipt *types.Receipt) (*domain.Receipt, error) {
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s failed in block %d",
			domain.ErrExecutionReverted, receipt.TxHash.Hex(), block)
	}

	if err := p.checkCode(ctx, receipt.ContractAddress); err != nil {
		return nil, err
	}

	return &domain.Receipt{
		TxHash:          receipt.TxHash,
		ContractAddress: receipt.ContractAddress,
		BlockNumber:     block,
		GasUsed:         receipt.GasUsed,
	}, nil
}

var _ usecase.Provider = (*EthProvider)(nil)
var _ usecase.ChainInfo = (*EthProvider)(nil)
