package blockchain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	argabi "github.com/trebuchet-org/treb-deploy/internal/adapters/abi"
	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
)

var (
	// copies one byte of runtime code
	okArtifact = &domain.Artifact{Name: "Ok", Bytecode: common.FromHex("0x6001600c60003960016000f300")}
	// reverts in the constructor
	revertArtifact = &domain.Artifact{Name: "Revert", Bytecode: common.FromHex("0x60006000fd")}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testChain struct {
	*SimulatedChain
	provider *EthProvider
}

func newTestChain(t *testing.T, wrap func(ChainClient) ChainClient) *testChain {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	chain := NewSimulatedChainForKey(key)
	t.Cleanup(func() { _ = chain.Close() })

	chainID, err := chain.ChainID(context.Background())
	require.NoError(t, err)

	var client ChainClient = chain
	if wrap != nil {
		client = wrap(chain)
	}

	provider := NewEthProvider(client, key, chainID, argabi.NewEncoder(), ProviderOptions{
		ConfirmationTimeout: 2 * time.Second,
		PollInterval:        10 * time.Millisecond,
	}, discardLogger())

	return &testChain{SimulatedChain: chain, provider: provider}
}

func TestEthProvider_DeployAndConfirm(t *testing.T) {
	tc := newTestChain(t, nil)
	ctx := context.Background()

	sub, err := tc.provider.Deploy(ctx, okArtifact, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), sub.Nonce)
	assert.Equal(t, crypto.CreateAddress(tc.provider.Sender(), 0), sub.Address)

	receipt, err := tc.provider.WaitForConfirmation(ctx, sub.TxHash)
	require.NoError(t, err)
	assert.Equal(t, sub.TxHash, receipt.TxHash)
	assert.Equal(t, sub.Address, receipt.ContractAddress)
	assert.NotZero(t, receipt.BlockNumber)
	assert.NotZero(t, receipt.GasUsed)

	code, err := tc.CodeAt(ctx, sub.Address, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, code)
}

func TestEthProvider_NotIdempotent(t *testing.T) {
	tc := newTestChain(t, nil)
	ctx := context.Background()

	first, err := tc.provider.Deploy(ctx, okArtifact, nil)
	require.NoError(t, err)
	second, err := tc.provider.Deploy(ctx, okArtifact, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Address, second.Address)
	assert.NotEqual(t, first.TxHash, second.TxHash)
	assert.Equal(t, first.Nonce+1, second.Nonce)
}

func TestEthProvider_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("constructor revert", func(t *testing.T) {
		tc := newTestChain(t, nil)
		_, err := tc.provider.Deploy(ctx, revertArtifact, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrExecutionReverted)
		assert.False(t, domain.IsRetryable(err))
	})

	t.Run("no bytecode", func(t *testing.T) {
		tc := newTestChain(t, nil)
		_, err := tc.provider.Deploy(ctx, &domain.Artifact{Name: "IFace"}, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidArtifact)
	})

	t.Run("too many arguments", func(t *testing.T) {
		tc := newTestChain(t, nil)
		_, err := tc.provider.Deploy(ctx, okArtifact, []any{1})
		assert.ErrorIs(t, err, domain.ErrArgumentMismatch)
	})

	t.Run("confirmation timeout", func(t *testing.T) {
		tc := newTestChain(t, func(c ChainClient) ChainClient {
			return &neverMined{ChainClient: c}
		})
		tc.provider.opts.ConfirmationTimeout = 50 * time.Millisecond

		sub, err := tc.provider.Deploy(ctx, okArtifact, nil)
		require.NoError(t, err)

		_, err = tc.provider.WaitForConfirmation(ctx, sub.TxHash)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrTimeout)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		tc := newTestChain(t, func(c ChainClient) ChainClient {
			return &neverMined{ChainClient: c}
		})

		sub, err := tc.provider.Deploy(ctx, okArtifact, nil)
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = tc.provider.WaitForConfirmation(cctx, sub.TxHash)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, domain.ErrTimeout)
	})
}

func TestEthProvider_SendFailureResetsNonce(t *testing.T) {
	flaky := &flakySender{failures: 1}
	tc := newTestChain(t, func(c ChainClient) ChainClient {
		flaky.ChainClient = c
		return flaky
	})
	ctx := context.Background()

	_, err := tc.provider.Deploy(ctx, okArtifact, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Nil(t, tc.provider.nonce)

	sub, err := tc.provider.Deploy(ctx, okArtifact, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), sub.Nonce)

	_, err = tc.provider.WaitForConfirmation(ctx, sub.TxHash)
	require.NoError(t, err)
}

func TestDryRunProvider_PredictsAddresses(t *testing.T) {
	tc := newTestChain(t, nil)
	ctx := context.Background()

	dry := NewDryRunProvider(tc.SimulatedChain, tc.provider.Sender(), big.NewInt(1337), argabi.NewEncoder(), discardLogger())

	var predicted []common.Address
	for i := 0; i < 2; i++ {
		sub, err := dry.Deploy(ctx, okArtifact, nil)
		require.NoError(t, err)
		receipt, err := dry.WaitForConfirmation(ctx, sub.TxHash)
		require.NoError(t, err)
		assert.Equal(t, sub.Address, receipt.ContractAddress)
		predicted = append(predicted, sub.Address)
	}
	assert.Equal(t, uint64(1337), dry.ChainID())

	for i := 0; i < 2; i++ {
		sub, err := tc.provider.Deploy(ctx, okArtifact, nil)
		require.NoError(t, err)
		assert.Equal(t, predicted[i], sub.Address)
	}

	_, err := dry.Deploy(ctx, okArtifact, []any{"extra"})
	assert.ErrorIs(t, err, domain.ErrArgumentMismatch)

	_, err = dry.WaitForConfirmation(ctx, common.Hash{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProvideProvider(t *testing.T) {
	encoder := argabi.NewEncoder()

	t.Run("simulated", func(t *testing.T) {
		cfg := &config.RuntimeConfig{
			Network:             &config.Network{Name: config.SimulatedNetwork, Simulated: true},
			PrivateKey:          "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
			ConfirmationTimeout: time.Second,
			PollInterval:        10 * time.Millisecond,
		}
		provider, cleanup, err := ProvideProvider(cfg, encoder, discardLogger())
		require.NoError(t, err)
		defer cleanup()

		require.IsType(t, &EthProvider{}, provider)
		assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), provider.(*EthProvider).Sender())
		assert.Equal(t, uint64(1337), provider.(*EthProvider).ChainID())
	})

	t.Run("dry run", func(t *testing.T) {
		cfg := &config.RuntimeConfig{
			Network:    &config.Network{Name: config.SimulatedNetwork, Simulated: true},
			PrivateKey: "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
			DryRun:     true,
		}
		provider, cleanup, err := ProvideProvider(cfg, encoder, discardLogger())
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, &DryRunProvider{}, provider)
	})

	t.Run("dry run predicts from the configured sender", func(t *testing.T) {
		sender := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
		cfg := &config.RuntimeConfig{
			Network: &config.Network{Name: config.SimulatedNetwork, Simulated: true},
			Sender:  sender.Hex(),
			DryRun:  true,
		}
		provider, cleanup, err := ProvideProvider(cfg, encoder, discardLogger())
		require.NoError(t, err)
		defer cleanup()

		require.IsType(t, &DryRunProvider{}, provider)
		sub, err := provider.Deploy(context.Background(), okArtifact, nil)
		require.NoError(t, err)
		assert.Equal(t, crypto.CreateAddress(sender, 0), sub.Address)
	})

	t.Run("dry run without a deployer", func(t *testing.T) {
		cfg := &config.RuntimeConfig{
			Network: &config.Network{Name: config.SimulatedNetwork, Simulated: true},
			DryRun:  true,
		}
		_, _, err := ProvideProvider(cfg, encoder, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--sender")
	})

	t.Run("bad key", func(t *testing.T) {
		cfg := &config.RuntimeConfig{
			Network:    &config.Network{Name: config.SimulatedNetwork, Simulated: true},
			PrivateKey: "0x1234",
		}
		_, _, err := ProvideProvider(cfg, encoder, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid private key")
		assert.NotContains(t, err.Error(), "1234")
	})
}

// neverMined hides receipts so confirmations never complete
type neverMined struct {
	ChainClient
}

func (n *neverMined) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

// flakySender fails the first sends with a connection error
type flakySender struct {
	ChainClient
	failures int32
	calls    atomic.Int32
}

func (f *flakySender) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
	}
	return f.ChainClient.SendTransaction(ctx, tx)
}
