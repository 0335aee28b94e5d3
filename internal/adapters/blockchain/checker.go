package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

// checkCode verifies that a confirmed creation left code at the address.
func (p *EthProvider) checkCode(ctx context.Context, address common.Address) error {
	if address == (common.Address{}) {
		return fmt.Errorf("%w: receipt has no contract address", domain.ErrExecutionReverted)
	}

	code, err := p.client.CodeAt(ctx, address, nil)
	if err != nil {
		return fmt.Errorf("failed to check code at %s: %w", address.Hex(), classify(err))
	}

	// If no code at address, the constructor returned nothing
	if len(code) == 0 {
		return fmt.Errorf("%w: no code at %s after deployment", domain.ErrExecutionReverted, address.Hex())
	}

	return nil
}
