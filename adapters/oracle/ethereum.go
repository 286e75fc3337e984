package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/layer-3/tokengate/core"
	"github.com/layer-3/tokengate/ports"
)

// ERC-1155 balanceOf(account, id). The check is a pure existence check, so
// this is the only method the oracle needs.
const balanceOfABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// DefaultCallTimeout bounds the only suspension point in the issuance path.
const DefaultCallTimeout = 10 * time.Second

// caller is the slice of ethclient.Client the oracle uses. Narrowed so
// tests can stub the chain.
type caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthereumOracle answers ownership checks with an eth_call against the
// configured chain endpoint.
type EthereumOracle struct {
	client  caller
	abi     abi.ABI
	timeout time.Duration
}

// NewEthereumOracle dials the chain RPC endpoint.
func NewEthereumOracle(ctx context.Context, rpcURL string) (*EthereumOracle, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain endpoint: %w", err)
	}
	return newOracle(client)
}

// NewEthereumOracleWithCaller builds an oracle on an existing contract
// caller. Used by tests.
func NewEthereumOracleWithCaller(client caller) (*EthereumOracle, error) {
	return newOracle(client)
}

func newOracle(client caller) (*EthereumOracle, error) {
	parsed, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse balanceOf ABI: %w", err)
	}
	return &EthereumOracle{
		client:  client,
		abi:     parsed,
		timeout: DefaultCallTimeout,
	}, nil
}

var _ ports.OwnershipOracle = (*EthereumOracle)(nil)

// BalanceOf returns the wallet's balance of the required token.
func (o *EthereumOracle) BalanceOf(ctx context.Context, requirement core.Requirement, wallet string) (*big.Int, error) {
	if !common.IsHexAddress(wallet) || !common.IsHexAddress(requirement.Contract) {
		return nil, core.ErrInvalidAddress
	}
	if requirement.TokenID == nil || requirement.TokenID.Sign() < 0 {
		return nil, core.ErrInvalidAddress
	}

	data, err := o.abi.Pack("balanceOf", common.HexToAddress(wallet), requirement.TokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	contract := common.HexToAddress(requirement.Contract)
	out, err := o.client.CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		// A timeout or RPC failure must never read as "not satisfied".
		return nil, fmt.Errorf("%w: %v", core.ErrOracleUnavailable, err)
	}

	results, err := o.abi.Unpack("balanceOf", out)
	if err != nil || len(results) != 1 {
		return nil, fmt.Errorf("%w: unexpected balanceOf result", core.ErrOracleUnavailable)
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected balanceOf result type", core.ErrOracleUnavailable)
	}

	return balance, nil
}
