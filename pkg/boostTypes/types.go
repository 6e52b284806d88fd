package boostTypes

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/snapshot-labs/boost-guard/internal/config"
)

type ProposalType string

var (
	ProposalType_SingleChoice ProposalType = "single-choice"
	ProposalType_Basic        ProposalType = "basic"
)

// Proposal is the hub's view of a proposal. ScoresTotal is kept exactly as reported and
// scaled to a boost's token decimals only when a reward is computed.
type Proposal struct {
	Id          string
	Type        ProposalType
	End         time.Time
	ScoresTotal decimal.Decimal
}

type Vote struct {
	Voter       string
	ProposalId  string
	Choice      uint64
	VotingPower decimal.Decimal
}

type EligibilityType string

var (
	// every voter is eligible regardless of choice
	EligibilityType_Incentive EligibilityType = "incentive"
	// only voters of Eligibility.Choice are eligible
	EligibilityType_Bribe EligibilityType = "bribe"
)

type Eligibility struct {
	Type   EligibilityType
	Choice uint64
}

func IncentiveEligibility() Eligibility {
	return Eligibility{Type: EligibilityType_Incentive}
}

func BribeEligibility(choice uint64) Eligibility {
	return Eligibility{Type: EligibilityType_Bribe, Choice: choice}
}

type DistributionType string

var (
	DistributionType_Weighted DistributionType = "weighted"
	DistributionType_Even     DistributionType = "even"
)

type Distribution struct {
	Type DistributionType
	// Limit caps a single voucher, in the smallest token unit. nil means uncapped.
	Limit *big.Int
}

func WeightedDistribution(limit *big.Int) Distribution {
	return Distribution{Type: DistributionType_Weighted, Limit: limit}
}

func EvenDistribution() Distribution {
	return Distribution{Type: DistributionType_Even}
}

type BoostStrategy string

var BoostStrategy_Proposal BoostStrategy = "proposal"

type Boost struct {
	Id           string
	ChainId      config.ChainId
	Strategy     BoostStrategy
	Version      string
	ProposalId   string
	Eligibility  Eligibility
	Distribution Distribution
	// PoolSize in the smallest token unit
	PoolSize *big.Int
	Decimals uint8
}

// BoostRef identifies a boost as requested by a voter.
type BoostRef struct {
	BoostId string
	ChainId config.ChainId
}

type RewardClaim struct {
	BoostId   string
	ChainId   config.ChainId
	Recipient common.Address
	// Amount in the smallest token unit
	Amount    *big.Int
	Signature []byte
}
