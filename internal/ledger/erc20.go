package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// erc20ABI covers the subset of ERC-20 the engine needs.
const erc20ABI = `[
{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// Backend is what the ERC-20 ledger needs from a chain connection;
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// ERC20 settles engine transfers in an ERC-20 token. Custody is the address
// of custodyKey; participants must approve it before Pull can succeed.
type ERC20 struct {
	backend    Backend
	token      *bind.BoundContract
	tokenAddr  common.Address
	custodyKey *ecdsa.PrivateKey
	custody    common.Address
	chainID    *big.Int
}

func NewERC20(backend Backend, tokenAddr common.Address, custodyKey *ecdsa.PrivateKey, chainID *big.Int) (*ERC20, error) {
	l, err := NewERC20Reader(backend, tokenAddr, crypto.PubkeyToAddress(custodyKey.PublicKey), chainID)
	if err != nil {
		return nil, err
	}
	l.custodyKey = custodyKey
	return l, nil
}

// NewERC20Reader binds the token for a known custody address without its
// key. It can read balances and allowances and send participant approvals,
// but Pull and Push fail.
func NewERC20Reader(backend Backend, tokenAddr, custody common.Address, chainID *big.Int) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20{
		backend:   backend,
		token:     bind.NewBoundContract(tokenAddr, parsed, backend, backend, backend),
		tokenAddr: tokenAddr,
		custody:   custody,
		chainID:   chainID,
	}, nil
}

// Custody returns the address holding engine funds.
func (l *ERC20) Custody() common.Address { return l.custody }

func (l *ERC20) Pull(ctx context.Context, from common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return l.transact(ctx, "transferFrom", from, l.custody, amount)
}

func (l *ERC20) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return l.transact(ctx, "transfer", to, amount)
}

// BalanceOf reads the token balance of addr.
func (l *ERC20) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return l.callUint(ctx, "balanceOf", addr)
}

// Allowance reads how much owner has approved custody to pull.
func (l *ERC20) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return l.callUint(ctx, "allowance", owner, l.custody)
}

// Approve lets custody pull up to amount from the owner of ownerKey. It is
// signed by the participant, not by custody.
func (l *ERC20) Approve(ctx context.Context, ownerKey *ecdsa.PrivateKey, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.send(ctx, ownerKey, "approve", l.custody, amount)
}

func (l *ERC20) callUint(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := l.token.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result %T", method, out[0])
	}
	return v, nil
}

// transact sends method from custody and waits for the receipt.
func (l *ERC20) transact(ctx context.Context, method string, params ...interface{}) error {
	if l.custodyKey == nil {
		return ErrReadOnly
	}
	return l.send(ctx, l.custodyKey, method, params...)
}

// send signs method with key and waits for the receipt; a reverted tx is an error.
func (l *ERC20) send(ctx context.Context, key *ecdsa.PrivateKey, method string, params ...interface{}) error {
	opts, err := bind.NewKeyedTransactorWithChainID(key, l.chainID)
	if err != nil {
		return fmt.Errorf("build tx opts: %w", err)
	}
	opts.Context = ctx

	tx, err := l.token.Transact(opts, method, params...)
	if err != nil {
		return fmt.Errorf("%s tx: %w", method, err)
	}
	receipt, err := bind.WaitMined(ctx, l.backend, tx)
	if err != nil {
		return fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s reverted: %s", method, tx.Hash().Hex())
	}
	return nil
}
