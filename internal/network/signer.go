package network

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// TxSigner signs transactions for submission. The access layer never holds
// key material beyond what signing requires; key lifecycle management is out
// of scope.
type TxSigner interface {
	Address() common.Address
	SignTx(chain domain.ChainID, tx *types.Transaction) (*types.Transaction, error)
}

// LocalSigner signs with a single in-process private key.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var _ TxSigner = (*LocalSigner)(nil)

// NewLocalSigner parses a hex-encoded private key, with or without the 0x
// prefix.
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("network: parse signer key: %w", err)
	}
	return &LocalSigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.addr
}

func (s *LocalSigner) SignTx(chain domain.ChainID, tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(uint64(chain))), s.key)
	if err != nil {
		return nil, fmt.Errorf("network: sign tx: %w", err)
	}
	return signed, nil
}
