package blockchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// DryRunProvider encodes deployments and predicts their CREATE addresses
// without sending anything.
type DryRunProvider struct {
	client  ChainClient
	from    common.Address
	chainID *big.Int
	encoder usecase.ArgumentEncoder
	log     *slog.Logger

	mu        sync.Mutex
	nonce     *uint64
	predicted map[common.Hash]common.Address
}

// NewDryRunProvider creates a dry-run provider. client is only used to read
// the sender's pending nonce and may be nil, in which case nonces start at 0.
func NewDryRunProvider(client ChainClient, from common.Address, chainID *big.Int, encoder usecase.ArgumentEncoder, log *slog.Logger) *DryRunProvider {
	return &DryRunProvider{
		client:    client,
		from:      from,
		chainID:   chainID,
		encoder:   encoder,
		log:       log.With("component", "DryRunProvider"),
		predicted: make(map[common.Hash]common.Address),
	}
}

// ChainID returns the chain the run is predicted against.
func (p *DryRunProvider) ChainID() uint64 {
	if p.chainID == nil {
		return 0
	}
	return p.chainID.Uint64()
}

// Deploy checks the arguments and predicts the address.
func (p *DryRunProvider) Deploy(ctx context.Context, artifact *domain.Artifact, args []any) (domain.Submission, error) {
	data, err := p.encoder.EncodeConstructor(artifact, args)
	if err != nil {
		return domain.Submission{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nonce == nil {
		var start uint64
		if p.client != nil {
			start, err = p.client.PendingNonceAt(ctx, p.from)
			if err != nil {
				return domain.Submission{}, fmt.Errorf("failed to get nonce for %s: %w", p.from.Hex(), classify(err))
			}
		}
		p.nonce = &start
	}
	nonce := *p.nonce
	*p.nonce++

	// Not a real transaction hash: a stable identifier for the prediction.
	hash := crypto.Keccak256Hash(p.from.Bytes(), new(big.Int).SetUint64(nonce).Bytes(), data)
	address := crypto.CreateAddress(p.from, nonce)
	p.predicted[hash] = address

	p.log.Debug("predicted deployment", "artifact", artifact.Name, "address", address.Hex(), "nonce", nonce)
	return domain.Submission{Address: address, TxHash: hash, Nonce: nonce}, nil
}

// WaitForConfirmation returns the predicted address immediately.
func (p *DryRunProvider) WaitForConfirmation(ctx context.Context, txHash common.Hash) (*domain.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	address, ok := p.predicted[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dry-run transaction %s", domain.ErrNotFound, txHash.Hex())
	}
	return &domain.Receipt{TxHash: txHash, ContractAddress: address}, nil
}

var _ usecase.Provider = (*DryRunProvider)(nil)
var _ usecase.ChainInfo = (*DryRunProvider)(nil)
