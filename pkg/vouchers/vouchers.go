// Package vouchers signs reward claims as EIP-712 typed data so that the boost contract
// can verify them with ecrecover.
package vouchers

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
	"github.com/snapshot-labs/boost-guard/pkg/types/numbers"
	"go.uber.org/zap"
)

const ClaimPrimaryType = "Claim"

var claimTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	ClaimPrimaryType: {
		{Name: "boostId", Type: "uint256"},
		{Name: "recipient", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
}

type VoucherSigner struct {
	signer       Signer
	globalConfig *config.Config
	logger       *zap.Logger
}

func NewVoucherSigner(signer Signer, cfg *config.Config, l *zap.Logger) *VoucherSigner {
	return &VoucherSigner{
		signer:       signer,
		globalConfig: cfg,
		logger:       l,
	}
}

func (vs *VoucherSigner) Address() string {
	return vs.signer.Address().Hex()
}

// TypedData builds the EIP-712 payload of a claim. Claims for chains without a configured
// verifying contract are rejected with Reason_UnknownChain.
func (vs *VoucherSigner) TypedData(claim *boostTypes.RewardClaim) (*apitypes.TypedData, error) {
	verifyingContract, ok := vs.globalConfig.GetVerifyingContract(claim.ChainId)
	if !ok {
		return nil, rejection.Signing(nil, rejection.Reason_UnknownChain,
			"no verifying contract configured for chain %s", claim.ChainId)
	}
	boostId, err := numbers.ParseUnits(claim.BoostId)
	if err != nil {
		return nil, rejection.Signing(err, rejection.Reason_InvalidInput, "boost id '%s' is not a uint256", claim.BoostId)
	}
	if claim.Amount == nil || claim.Amount.Sign() < 0 {
		return nil, rejection.Signing(nil, rejection.Reason_InvalidInput, "invalid claim amount")
	}

	chainId := new(big.Int).SetUint64(uint64(claim.ChainId))
	return &apitypes.TypedData{
		Types:       claimTypes,
		PrimaryType: ClaimPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              vs.globalConfig.SignerConfig.DomainName,
			Version:           vs.globalConfig.SignerConfig.DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainId),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"boostId":   boostId.String(),
			"recipient": claim.Recipient.Hex(),
			"amount":    claim.Amount.String(),
		},
	}, nil
}

// Hash returns the EIP-712 digest keccak256("\x19\x01" || domainSeparator || hashStruct(claim)).
func (vs *VoucherSigner) Hash(claim *boostTypes.RewardClaim) ([]byte, error) {
	typedData, err := vs.TypedData(claim)
	if err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(*typedData)
	if err != nil {
		return nil, rejection.Signing(err, rejection.Reason_SigningFailed, "failed to hash claim")
	}
	return hash, nil
}

// Sign returns the signature of the claim. The signature only depends on the claim and the
// signing key, so the same claim always yields the same bytes.
func (vs *VoucherSigner) Sign(claim *boostTypes.RewardClaim) ([]byte, error) {
	hash, err := vs.Hash(claim)
	if err != nil {
		return nil, err
	}
	sig, err := vs.signer.SignHash(hash)
	if err != nil {
		return nil, rejection.Signing(err, rejection.Reason_SigningFailed, "failed to sign claim")
	}
	vs.logger.Sugar().Debugw("Signed voucher",
		zap.String("boostId", claim.BoostId),
		zap.String("chainId", claim.ChainId.String()),
		zap.String("recipient", claim.Recipient.Hex()),
		zap.String("amount", claim.Amount.String()),
	)
	return sig, nil
}

// EncodeSignature renders a signature the way the claiming dapp expects it.
func EncodeSignature(sig []byte) string {
	return hexutil.Encode(sig)
}
