package vouchers

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Signer produces a 65 byte r || s || v signature over a 32 byte digest, with v in {27, 28}.
type Signer interface {
	SignHash(hash []byte) ([]byte, error)
	Address() common.Address
}

type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner loads a secp256k1 key from its hex encoding, with or without 0x prefix.
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignHash(hash []byte) ([]byte, error) {
	if len(hash) != common.HashLength {
		return nil, errors.Errorf("hash must be %d bytes, got %d", common.HashLength, len(hash))
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign hash")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
