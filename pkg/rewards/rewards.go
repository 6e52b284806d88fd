package rewards

import (
	"math/big"

	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
	"github.com/snapshot-labs/boost-guard/pkg/types/numbers"
	"go.uber.org/zap"
)

type RewardsCalculator struct {
	logger *zap.Logger
}

func NewRewardsCalculator(l *zap.Logger) *RewardsCalculator {
	return &RewardsCalculator{
		logger: l,
	}
}

// RewardInput holds every quantity in the smallest unit of the boost's token.
type RewardInput struct {
	PoolSize     *big.Int
	VotingPower  *big.Int
	ScoresTotal  *big.Int
	Distribution boostTypes.Distribution
	// EligibleVoters is only used by the even distribution; nil means the voter count is unknown.
	EligibleVoters *uint64
}

// ComputeReward returns the share of the pool owed to a single voter.
func (rc *RewardsCalculator) ComputeReward(input *RewardInput) (*big.Int, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var reward *big.Int
	var err error
	switch input.Distribution.Type {
	case boostTypes.DistributionType_Weighted:
		reward, err = ComputeWeightedReward(input.PoolSize, input.VotingPower, input.ScoresTotal)
		if err != nil {
			return nil, err
		}
		reward = ApplyLimit(reward, input.Distribution.Limit)
	case boostTypes.DistributionType_Even:
		if input.EligibleVoters == nil {
			return nil, rejection.Computation(rejection.Reason_NotImplemented,
				"even distribution requires the eligible voter count")
		}
		reward, err = ComputeEvenReward(input.PoolSize, *input.EligibleVoters)
		if err != nil {
			return nil, err
		}
	default:
		return nil, rejection.Computation(rejection.Reason_NotImplemented,
			"unsupported distribution '%s'", input.Distribution.Type)
	}

	rc.logger.Sugar().Debugw("Computed reward",
		zap.String("distribution", string(input.Distribution.Type)),
		zap.String("poolSize", input.PoolSize.String()),
		zap.String("votingPower", input.VotingPower.String()),
		zap.String("scoresTotal", input.ScoresTotal.String()),
		zap.String("reward", reward.String()),
	)
	return reward, nil
}

// ComputeVoterReward scales the vote and proposal score to the boost token's decimals
// before computing the reward, so every operand of the division shares one scale.
func (rc *RewardsCalculator) ComputeVoterReward(
	boost *boostTypes.Boost,
	proposal *boostTypes.Proposal,
	vote *boostTypes.Vote,
	eligibleVoters *uint64,
) (*big.Int, error) {
	votingPower, err := numbers.ScaleToUnits(vote.VotingPower, boost.Decimals)
	if err != nil {
		return nil, rejection.Computation(rejection.Reason_InvalidInput, "invalid voting power %s", vote.VotingPower.String())
	}
	scoresTotal, err := numbers.ScaleToUnits(proposal.ScoresTotal, boost.Decimals)
	if err != nil {
		return nil, rejection.Computation(rejection.Reason_InvalidInput, "invalid proposal score %s", proposal.ScoresTotal.String())
	}
	return rc.ComputeReward(&RewardInput{
		PoolSize:       boost.PoolSize,
		VotingPower:    votingPower,
		ScoresTotal:    scoresTotal,
		Distribution:   boost.Distribution,
		EligibleVoters: eligibleVoters,
	})
}

// ComputeWeightedReward returns floor(votingPower * pool / scoresTotal).
func ComputeWeightedReward(pool, votingPower, scoresTotal *big.Int) (*big.Int, error) {
	if scoresTotal.Sign() == 0 {
		return nil, rejection.Computation(rejection.Reason_DivisionByZero, "proposal score is zero")
	}
	product := new(big.Int).Mul(votingPower, pool)
	return product.Quo(product, scoresTotal), nil
}

// ComputeEvenReward splits the pool equally, rounding down.
func ComputeEvenReward(pool *big.Int, eligibleVoters uint64) (*big.Int, error) {
	if eligibleVoters == 0 {
		return nil, rejection.Computation(rejection.Reason_DivisionByZero, "no eligible voters")
	}
	return new(big.Int).Quo(pool, new(big.Int).SetUint64(eligibleVoters)), nil
}

// ApplyLimit clamps a single voucher to limit. A nil limit leaves the reward untouched.
func ApplyLimit(reward, limit *big.Int) *big.Int {
	if limit == nil || reward.Cmp(limit) <= 0 {
		return reward
	}
	return new(big.Int).Set(limit)
}

func validateInput(input *RewardInput) error {
	for name, v := range map[string]*big.Int{
		"pool size":    input.PoolSize,
		"voting power": input.VotingPower,
		"scores total": input.ScoresTotal,
	} {
		if v == nil {
			return rejection.Computation(rejection.Reason_InvalidInput, "missing %s", name)
		}
		if v.Sign() < 0 {
			return rejection.Computation(rejection.Reason_InvalidInput, "negative %s %s", name, v.String())
		}
	}
	if input.Distribution.Limit != nil && input.Distribution.Limit.Sign() < 0 {
		return rejection.Computation(rejection.Reason_InvalidInput, "negative distribution limit")
	}
	return nil
}
