package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is a signer loaded from a configured private key.
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

var ErrEmptyKey = errors.New("private key is empty")

// ParseAccount loads a hex private key, with or without the 0x prefix.
func ParseAccount(privateKeyHex string) (Account, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return Account{}, ErrEmptyKey
	}

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return Account{}, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return Account{}, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return Account{Key: privateKey, Address: crypto.PubkeyToAddress(*publicKeyECDSA)}, nil
}

// ParseAccounts loads every key in order.
func ParseAccounts(keys []string) ([]Account, error) {
	accounts := make([]Account, 0, len(keys))
	for i, key := range keys {
		account, err := ParseAccount(key)
		if err != nil {
			return nil, fmt.Errorf("account[%d]: %w", i, err)
		}
		accounts = append(accounts, account)
	}

	return accounts, nil
}

// Transactor returns signing options for account. A zero gasLimit lets the node estimate.
func Transactor(ctx context.Context, chainID *big.Int, account Account, gasLimit uint64) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(account.Key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	auth.Context = ctx
	auth.GasLimit = gasLimit

	return auth, nil
}
