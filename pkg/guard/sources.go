package guard

import (
	"context"

	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
)

type ProposalSource interface {
	GetProposal(ctx context.Context, proposalId string) (*boostTypes.Proposal, error)
}

// VoteSource returns an error wrapping rejection.ErrVoteNotFound when the voter has not voted.
type VoteSource interface {
	GetVote(ctx context.Context, voter string, proposalId string) (*boostTypes.Vote, error)
}

// BoostSource returns an error wrapping rejection.ErrBoostNotFound for unknown boosts.
type BoostSource interface {
	GetBoost(ctx context.Context, boostId string, chainId config.ChainId) (*boostTypes.Boost, error)
}

// EligibleVoterSource enumerates the voters a boost pays out to. It is only needed by
// boosts with an even distribution.
type EligibleVoterSource interface {
	CountEligibleVoters(ctx context.Context, proposalId string, eligibility boostTypes.Eligibility) (uint64, error)
}

type ClaimSigner interface {
	Sign(claim *boostTypes.RewardClaim) ([]byte, error)
}

type Sources struct {
	Proposals ProposalSource
	Votes     VoteSource
	Boosts    BoostSource
	// optional
	EligibleVoters EligibleVoterSource
}
