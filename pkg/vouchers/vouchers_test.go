package vouchers

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/internal/logger"
	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
	"github.com/stretchr/testify/assert"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func setup(t *testing.T) *VoucherSigner {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	contracts := orderedmap.New[config.ChainId, common.Address]()
	contracts.Set(config.ChainId(11155111), common.HexToAddress("0x2bb8e3F8Bf6a5bb5fC3B2DEC6Ea4D21E9A4e3aB3"))
	contracts.Set(config.ChainId(1), common.HexToAddress("0x8E8913197114c911F13cfBfCBBD138C1DC74B964"))

	cfg := &config.Config{
		SignerConfig: config.SignerConfig{
			DomainName:         config.DefaultDomainName,
			DomainVersion:      config.DefaultDomainVersion,
			VerifyingContracts: contracts,
		},
	}

	signer, err := NewLocalSigner(testPrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	return NewVoucherSigner(signer, cfg, l)
}

func testClaim() *boostTypes.RewardClaim {
	return &boostTypes.RewardClaim{
		BoostId:   "42",
		ChainId:   config.ChainId(11155111),
		Recipient: common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Amount:    big.NewInt(25),
	}
}

func recoverAddress(t *testing.T, hash []byte, sig []byte) common.Address {
	raw := make([]byte, len(sig))
	copy(raw, sig)
	raw[crypto.RecoveryIDOffset] -= 27

	pub, err := crypto.SigToPub(hash, raw)
	if err != nil {
		t.Fatal(err)
	}
	return crypto.PubkeyToAddress(*pub)
}

func Test_LocalSigner(t *testing.T) {
	t.Run("Loads keys with and without prefix", func(t *testing.T) {
		withPrefix, err := NewLocalSigner(testPrivateKey)
		assert.Nil(t, err)
		withoutPrefix, err := NewLocalSigner(testPrivateKey[2:])
		assert.Nil(t, err)

		assert.Equal(t, testAddress, withPrefix.Address().Hex())
		assert.Equal(t, withPrefix.Address(), withoutPrefix.Address())
	})
	t.Run("Rejects invalid keys", func(t *testing.T) {
		_, err := NewLocalSigner("")
		assert.NotNil(t, err)

		_, err = NewLocalSigner("0x1234")
		assert.NotNil(t, err)
	})
	t.Run("Rejects digests of the wrong length", func(t *testing.T) {
		signer, _ := NewLocalSigner(testPrivateKey)
		_, err := signer.SignHash([]byte{0x01})
		assert.NotNil(t, err)
	})
	t.Run("Produces recoverable signatures with an Ethereum v", func(t *testing.T) {
		signer, _ := NewLocalSigner(testPrivateKey)
		hash := crypto.Keccak256([]byte("boost"))

		sig, err := signer.SignHash(hash)
		assert.Nil(t, err)
		assert.Len(t, sig, 65)
		assert.Contains(t, []byte{27, 28}, sig[64])
		assert.Equal(t, signer.Address(), recoverAddress(t, hash, sig))
	})
}

func Test_VoucherSigner(t *testing.T) {
	vs := setup(t)

	t.Run("Typed data carries the claim and its domain", func(t *testing.T) {
		td, err := vs.TypedData(testClaim())
		assert.Nil(t, err)

		assert.Equal(t, ClaimPrimaryType, td.PrimaryType)
		assert.Equal(t, "boost", td.Domain.Name)
		assert.Equal(t, "1", td.Domain.Version)
		assert.Equal(t, "11155111", (*big.Int)(td.Domain.ChainId).String())
		assert.Equal(t, common.HexToAddress("0x2bb8e3F8Bf6a5bb5fC3B2DEC6Ea4D21E9A4e3aB3"), common.HexToAddress(td.Domain.VerifyingContract))
		assert.Equal(t, "0x2bB8e3F8BF6a5Bb5Fc3b2dEc6ea4D21e9a4E3Ab3", td.Domain.VerifyingContract)
		assert.Equal(t, "42", td.Message["boostId"])
		assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", td.Message["recipient"])
		assert.Equal(t, "25", td.Message["amount"])
	})
	t.Run("Signing is deterministic", func(t *testing.T) {
		first, err := vs.Sign(testClaim())
		assert.Nil(t, err)
		second, err := vs.Sign(testClaim())
		assert.Nil(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first, 65)
	})
	t.Run("Signature recovers to the guard address", func(t *testing.T) {
		claim := testClaim()
		hash, err := vs.Hash(claim)
		assert.Nil(t, err)
		sig, err := vs.Sign(claim)
		assert.Nil(t, err)

		assert.Equal(t, testAddress, recoverAddress(t, hash, sig).Hex())
		assert.Equal(t, testAddress, vs.Address())
	})
	t.Run("Every claim field changes the digest", func(t *testing.T) {
		base, err := vs.Hash(testClaim())
		assert.Nil(t, err)

		mutations := map[string]func(c *boostTypes.RewardClaim){
			"boostId":   func(c *boostTypes.RewardClaim) { c.BoostId = "43" },
			"chainId":   func(c *boostTypes.RewardClaim) { c.ChainId = 1 },
			"recipient": func(c *boostTypes.RewardClaim) { c.Recipient = common.HexToAddress(testAddress) },
			"amount":    func(c *boostTypes.RewardClaim) { c.Amount = big.NewInt(26) },
		}
		for name, mutate := range mutations {
			claim := testClaim()
			mutate(claim)
			hash, err := vs.Hash(claim)
			assert.Nil(t, err, name)
			assert.NotEqual(t, base, hash, name)
		}
	})
	t.Run("Unknown chain is a signing rejection", func(t *testing.T) {
		claim := testClaim()
		claim.ChainId = 137

		_, err := vs.Sign(claim)
		assert.True(t, rejection.IsKind(err, rejection.Kind_Signing))
		assert.True(t, rejection.IsReason(err, rejection.Reason_UnknownChain))
	})
	t.Run("Non numeric boost id cannot be signed", func(t *testing.T) {
		claim := testClaim()
		claim.BoostId = "boost-1"

		_, err := vs.Sign(claim)
		assert.True(t, rejection.IsReason(err, rejection.Reason_InvalidInput))
	})
	t.Run("Signatures are hex encoded with prefix", func(t *testing.T) {
		assert.Equal(t, "0x01ff", EncodeSignature([]byte{0x01, 0xff}))
	})
}
