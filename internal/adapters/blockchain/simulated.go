package blockchain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

// simulatedBalance funds the deployer on the in-process chain (1M ether).
var simulatedBalance = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))

// SimulatedChain is an in-process chain that mines a block for every
// accepted transaction.
type SimulatedChain struct {
	simulated.Client

	backend *simulated.Backend
	mu      sync.Mutex
}

// NewSimulatedChain starts a chain with the given accounts funded.
func NewSimulatedChain(funded ...common.Address) *SimulatedChain {
	alloc := make(types.GenesisAlloc, len(funded))
	for _, addr := range funded {
		alloc[addr] = types.Account{Balance: new(big.Int).Set(simulatedBalance)}
	}
	backend := simulated.NewBackend(alloc)
	return &SimulatedChain{
		Client:  backend.Client(),
		backend: backend,
	}
}

// NewSimulatedChainForKey starts a chain with the key's address funded.
func NewSimulatedChainForKey(key *ecdsa.PrivateKey) *SimulatedChain {
	return NewSimulatedChain(crypto.PubkeyToAddress(key.PublicKey))
}

// SendTransaction sends tx and mines it immediately.
func (c *SimulatedChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	c.backend.Commit()
	return nil
}

// Close stops the backend.
func (c *SimulatedChain) Close() error {
	return c.backend.Close()
}

var _ ChainClient = (*SimulatedChain)(nil)
