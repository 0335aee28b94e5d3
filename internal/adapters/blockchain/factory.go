package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

const dialTimeout = 15 * time.Second

// ProvideProvider builds the provider selected by the runtime configuration.
// The returned cleanup closes the underlying connection or backend.
func ProvideProvider(cfg *config.RuntimeConfig, encoder usecase.ArgumentEncoder, log *slog.Logger) (usecase.Provider, func(), error) {
	if cfg.Network == nil {
		return nil, nil, fmt.Errorf("no network configured")
	}

	var (
		key    *ecdsa.PrivateKey
		sender common.Address
	)
	if cfg.PrivateKey != "" || !cfg.DryRun {
		var err error
		if key, err = ParsePrivateKey(cfg.PrivateKey); err != nil {
			return nil, nil, err
		}
		sender = crypto.PubkeyToAddress(key.PublicKey)
	}
	if cfg.DryRun && cfg.Sender != "" {
		sender = common.HexToAddress(cfg.Sender)
	}
	if sender == (common.Address{}) {
		return nil, nil, fmt.Errorf("no deployer for %s: set --sender or --private-key", cfg.Network.Name)
	}

	var (
		client  ChainClient
		cleanup func()
	)
	if cfg.Network.Simulated {
		chain := NewSimulatedChain(sender)
		client = chain
		cleanup = func() {
			if err := chain.Close(); err != nil {
				log.Debug("failed to close simulated chain", "error", err)
			}
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()

		ec, err := ethclient.DialContext(ctx, cfg.Network.RPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to connect to %s: %v", domain.ErrConnection, cfg.Network.Name, err)
		}
		client = ec
		cleanup = ec.Close
	}

	chainID, err := fetchChainID(client)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to get chain ID for %s: %w", cfg.Network.Name, err)
	}

	log.Debug("provider ready",
		"network", cfg.Network.Name,
		"chain_id", chainID,
		"sender", sender.Hex(),
		"dry_run", cfg.DryRun,
	)

	if cfg.DryRun {
		return NewDryRunProvider(client, sender, chainID, encoder, log), cleanup, nil
	}

	return NewEthProvider(client, key, chainID, encoder, ProviderOptions{
		ConfirmationTimeout: cfg.ConfirmationTimeout,
		PollInterval:        cfg.PollInterval,
	}, log), cleanup, nil
}

func fetchChainID(client ChainClient) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	id, err := client.ChainID(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return id, nil
}

// ParsePrivateKey parses a hex private key with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// never echo the key
		return nil, fmt.Errorf("invalid private key: %d hex characters, expected 64", len(hexKey))
	}
	return key, nil
}
