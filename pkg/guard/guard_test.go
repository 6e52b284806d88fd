package guard

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/internal/logger"
	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/eligibility"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
	"github.com/snapshot-labs/boost-guard/pkg/rewards"
	"github.com/snapshot-labs/boost-guard/pkg/vouchers"
	"github.com/stretchr/testify/assert"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

const (
	proposalId = "0x6b703f5ea4b0e8a6bc2c3bda3f6bdf81e5bf9e58b3f9ba9f7a7e1c7b8a1f2e3d"
	voter      = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	chainId    = config.ChainId(11155111)
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeProposals struct {
	proposal *boostTypes.Proposal
	err      error
}

func (f *fakeProposals) GetProposal(ctx context.Context, id string) (*boostTypes.Proposal, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.proposal == nil || f.proposal.Id != id {
		return nil, rejection.ErrProposalNotFound
	}
	return f.proposal, nil
}

type fakeVotes struct {
	vote *boostTypes.Vote
	err  error
}

func (f *fakeVotes) GetVote(ctx context.Context, voter string, proposalId string) (*boostTypes.Vote, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.vote == nil {
		return nil, errors.Wrap(rejection.ErrVoteNotFound, voter)
	}
	return f.vote, nil
}

type fakeBoosts struct {
	boosts map[string]*boostTypes.Boost
	errs   map[string]error
	// delays simulate slow subgraph answers
	delays map[string]time.Duration
	calls  atomic.Int32
}

func (f *fakeBoosts) GetBoost(ctx context.Context, boostId string, chainId config.ChainId) (*boostTypes.Boost, error) {
	f.calls.Add(1)
	if d, ok := f.delays[boostId]; ok {
		time.Sleep(d)
	}
	if err, ok := f.errs[boostId]; ok {
		return nil, err
	}
	b, ok := f.boosts[boostId]
	if !ok || b.ChainId != chainId {
		return nil, rejection.ErrBoostNotFound
	}
	return b, nil
}

type fakeVoters struct {
	count uint64
}

func (f *fakeVoters) CountEligibleVoters(ctx context.Context, proposalId string, e boostTypes.Eligibility) (uint64, error) {
	return f.count, nil
}

type fixture struct {
	proposals *fakeProposals
	votes     *fakeVotes
	boosts    *fakeBoosts
	voters    *fakeVoters
	signer    *vouchers.VoucherSigner
	cfg       *config.Config
	l         *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	contracts := orderedmap.New[config.ChainId, common.Address]()
	contracts.Set(chainId, common.HexToAddress("0x2bb8e3F8Bf6a5bb5fC3B2DEC6Ea4D21E9A4e3aB3"))
	cfg := &config.Config{
		GuardConfig: config.GuardConfig{MaxConcurrency: 4},
		SignerConfig: config.SignerConfig{
			DomainName:         config.DefaultDomainName,
			DomainVersion:      config.DefaultDomainVersion,
			VerifyingContracts: contracts,
		},
	}

	localSigner, err := vouchers.NewLocalSigner("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{
		proposals: &fakeProposals{proposal: &boostTypes.Proposal{
			Id:          proposalId,
			Type:        boostTypes.ProposalType_SingleChoice,
			End:         now.Add(-time.Hour),
			ScoresTotal: decimal.NewFromInt(1000),
		}},
		votes: &fakeVotes{vote: &boostTypes.Vote{
			Voter:       voter,
			ProposalId:  proposalId,
			Choice:      1,
			VotingPower: decimal.NewFromInt(250),
		}},
		boosts: &fakeBoosts{
			boosts: map[string]*boostTypes.Boost{},
			errs:   map[string]error{},
			delays: map[string]time.Duration{},
		},
		signer: vouchers.NewVoucherSigner(localSigner, cfg, l),
		cfg:    cfg,
		l:      l,
	}
}

func (f *fixture) addBoost(id string, eligibility boostTypes.Eligibility, distribution boostTypes.Distribution, pool int64) {
	f.boosts.boosts[id] = &boostTypes.Boost{
		Id:           id,
		ChainId:      chainId,
		Strategy:     boostTypes.BoostStrategy_Proposal,
		ProposalId:   proposalId,
		Eligibility:  eligibility,
		Distribution: distribution,
		PoolSize:     big.NewInt(pool),
		Decimals:     0,
	}
}

func (f *fixture) guard() *BoostGuard {
	sources := Sources{
		Proposals: f.proposals,
		Votes:     f.votes,
		Boosts:    f.boosts,
	}
	if f.voters != nil {
		sources.EligibleVoters = f.voters
	}
	return NewBoostGuard(
		sources,
		f.signer,
		eligibility.NewValidator(func() time.Time { return now }),
		rewards.NewRewardsCalculator(f.l),
		nil,
		f.cfg,
		f.l,
	)
}

func request(boostIds ...string) *Request {
	refs := make([]boostTypes.BoostRef, 0, len(boostIds))
	for _, id := range boostIds {
		refs = append(refs, boostTypes.BoostRef{BoostId: id, ChainId: chainId})
	}
	return &Request{ProposalId: proposalId, Voter: voter, Boosts: refs}
}

func Test_BoostGuard(t *testing.T) {
	t.Run("Weighted reward is a share of the pool", func(t *testing.T) {
		f := newFixture(t)
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), 100)

		res, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.Nil(t, err)
		claims := res.Claims()
		assert.Len(t, claims, 1)
		assert.Equal(t, "25", claims[0].Amount.String())
		assert.Equal(t, "1", claims[0].BoostId)
		assert.Equal(t, chainId, claims[0].ChainId)
		assert.Equal(t, common.HexToAddress(voter), claims[0].Recipient)
		assert.Nil(t, claims[0].Signature)
	})
	t.Run("Bribe for another choice is omitted while other boosts are served", func(t *testing.T) {
		f := newFixture(t)
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), 100)
		f.addBoost("2", boostTypes.BribeEligibility(2), boostTypes.WeightedDistribution(nil), 100)
		f.addBoost("3", boostTypes.BribeEligibility(1), boostTypes.WeightedDistribution(nil), 400)

		res, err := f.guard().CreateVouchers(context.Background(), request("1", "2", "3"))
		assert.Nil(t, err)

		claims := res.Claims()
		assert.Len(t, claims, 2)
		assert.Equal(t, "1", claims[0].BoostId)
		assert.Equal(t, "3", claims[1].BoostId)
		assert.Equal(t, "100", claims[1].Amount.String())

		rejected := res.Rejected()
		assert.Len(t, rejected, 1)
		assert.Equal(t, "2", rejected[0].Ref.BoostId)
		assert.Equal(t, rejection.Kind_Validation, rejected[0].Rejection.Kind)
		assert.Equal(t, rejection.Reason_ChoiceMismatch, rejected[0].Rejection.Reason)
		assert.Equal(t, "voter voted 1 but needed to vote 2 to be eligible", rejected[0].Rejection.Error())
	})
	t.Run("Zero score rejects the boost without failing the request", func(t *testing.T) {
		f := newFixture(t)
		f.proposals.proposal.ScoresTotal = decimal.Zero
		f.votes.vote.VotingPower = decimal.Zero
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), 100)

		res, err := f.guard().CreateVouchers(context.Background(), request("1"))
		assert.Nil(t, err)
		assert.Len(t, res.Claims(), 0)
		assert.Equal(t, rejection.Reason_DivisionByZero, res.Rejected()[0].Rejection.Reason)
	})
	t.Run("Proposal that has not ended fails the request", func(t *testing.T) {
		f := newFixture(t)
		f.proposals.proposal.End = now.Add(time.Hour)
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), 100)

		res, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.Nil(t, res)
		assert.True(t, rejection.IsReason(err, rejection.Reason_NotEnded))
		assert.Equal(t, int32(0), f.boosts.calls.Load())
	})
	t.Run("Unsupported proposal type fails the request", func(t *testing.T) {
		f := newFixture(t)
		f.proposals.proposal.Type = "quorum"

		_, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.True(t, rejection.IsReason(err, rejection.Reason_UnsupportedType))
		assert.Equal(t, "`quorum` proposals are not eligible for boosting", err.Error())
	})
	t.Run("Voter who has not voted fails the request", func(t *testing.T) {
		f := newFixture(t)
		f.votes.vote = nil

		_, err := f.guard().CreateVouchers(context.Background(), request("1"))
		assert.True(t, rejection.IsKind(err, rejection.Kind_Validation))
		assert.True(t, rejection.IsReason(err, rejection.Reason_VoteNotFound))
	})
	t.Run("Missing vote is reported before an open proposal", func(t *testing.T) {
		f := newFixture(t)
		f.proposals.proposal.End = now.Add(time.Hour)
		f.votes.vote = nil

		_, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.True(t, rejection.IsReason(err, rejection.Reason_VoteNotFound))
	})
	t.Run("Missing proposal is reported before a missing vote", func(t *testing.T) {
		f := newFixture(t)
		f.proposals.proposal = nil
		f.votes.vote = nil

		_, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.True(t, rejection.IsReason(err, rejection.Reason_ProposalNotFound))
	})
	t.Run("Hub outage is an upstream failure", func(t *testing.T) {
		f := newFixture(t)
		f.proposals.err = errors.Wrap(rejection.ErrUpstreamUnavailable, "hub")

		_, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.True(t, rejection.IsKind(err, rejection.Kind_Upstream))
	})
	t.Run("Subgraph failures are isolated per boost", func(t *testing.T) {
		f := newFixture(t)
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), 100)
		f.boosts.errs["2"] = errors.Wrap(rejection.ErrUpstreamUnavailable, "subgraph")

		res, err := f.guard().GetRewards(context.Background(), request("2", "1", "404"))
		assert.Nil(t, err)
		assert.Len(t, res.Outcomes, 3)
		assert.Equal(t, rejection.Kind_Upstream, res.Outcomes[0].Rejection.Kind)
		assert.NotNil(t, res.Outcomes[1].Claim)
		assert.Equal(t, rejection.Reason_BoostNotFound, res.Outcomes[2].Rejection.Reason)
	})
	t.Run("Boost bound to another proposal is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), 100)
		f.boosts.boosts["1"].ProposalId = "0xother"

		res, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.Nil(t, err)
		assert.Equal(t, rejection.Reason_ProposalMismatch, res.Outcomes[0].Rejection.Reason)
	})
	t.Run("Estimate equals the signed voucher reward", func(t *testing.T) {
		f := newFixture(t)
		f.proposals.proposal.ScoresTotal = decimal.RequireFromString("1234.56789")
		f.votes.vote.VotingPower = decimal.RequireFromString("98.7654321")
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), 1000000)
		f.boosts.boosts["1"].Decimals = 6
		g := f.guard()

		estimate, err := g.GetRewards(context.Background(), request("1"))
		assert.Nil(t, err)
		signed, err := g.CreateVouchers(context.Background(), request("1"))
		assert.Nil(t, err)

		assert.Equal(t, estimate.Claims()[0].Amount, signed.Claims()[0].Amount)
		assert.Len(t, signed.Claims()[0].Signature, 65)
	})
	t.Run("Signatures are deterministic across requests", func(t *testing.T) {
		f := newFixture(t)
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), 100)
		g := f.guard()

		first, err := g.CreateVouchers(context.Background(), request("1"))
		assert.Nil(t, err)
		second, err := g.CreateVouchers(context.Background(), request("1"))
		assert.Nil(t, err)
		assert.Equal(t, first.Claims()[0].Signature, second.Claims()[0].Signature)
	})
	t.Run("Capped weighted reward", func(t *testing.T) {
		f := newFixture(t)
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(big.NewInt(10)), 100)

		res, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.Nil(t, err)
		assert.Equal(t, "10", res.Claims()[0].Amount.String())
	})
	t.Run("Even distribution without a voter source is not implemented", func(t *testing.T) {
		f := newFixture(t)
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.EvenDistribution(), 100)

		res, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.Nil(t, err)
		assert.Equal(t, rejection.Reason_NotImplemented, res.Outcomes[0].Rejection.Reason)
	})
	t.Run("Even distribution splits the pool between eligible voters", func(t *testing.T) {
		f := newFixture(t)
		f.voters = &fakeVoters{count: 4}
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.EvenDistribution(), 100)

		res, err := f.guard().GetRewards(context.Background(), request("1"))
		assert.Nil(t, err)
		assert.Equal(t, "25", res.Claims()[0].Amount.String())
	})
	t.Run("Chains without a verifying contract cannot be signed", func(t *testing.T) {
		f := newFixture(t)
		f.addBoost("1", boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), 100)
		f.boosts.boosts["1"].ChainId = 1

		req := request("1")
		req.Boosts[0].ChainId = 1
		res, err := f.guard().CreateVouchers(context.Background(), req)
		assert.Nil(t, err)
		assert.Equal(t, rejection.Kind_Signing, res.Outcomes[0].Rejection.Kind)
		assert.Equal(t, rejection.Reason_UnknownChain, res.Outcomes[0].Rejection.Reason)
	})
	t.Run("Signing without a key fails the request", func(t *testing.T) {
		f := newFixture(t)
		g := NewBoostGuard(Sources{Proposals: f.proposals, Votes: f.votes, Boosts: f.boosts}, nil,
			eligibility.NewValidator(func() time.Time { return now }), rewards.NewRewardsCalculator(f.l), nil, f.cfg, f.l)

		_, err := g.CreateVouchers(context.Background(), request("1"))
		assert.True(t, rejection.IsKind(err, rejection.Kind_Signing))
		assert.False(t, g.CanSign())
	})
	t.Run("Invalid voter address is a validation failure", func(t *testing.T) {
		f := newFixture(t)
		req := request("1")
		req.Voter = "not-an-address"

		_, err := f.guard().GetRewards(context.Background(), req)
		assert.True(t, rejection.IsReason(err, rejection.Reason_InvalidRequest))
	})
	t.Run("Outcomes follow request order under concurrency", func(t *testing.T) {
		f := newFixture(t)
		ids := make([]string, 0)
		for i := 0; i < 12; i++ {
			id := fmt.Sprintf("%d", i+1)
			ids = append(ids, id)
			f.addBoost(id, boostTypes.IncentiveEligibility(), boostTypes.WeightedDistribution(nil), int64(100*(i+1)))
			// earlier boosts answer last
			f.boosts.delays[id] = time.Duration(12-i) * time.Millisecond
		}

		res, err := f.guard().GetRewards(context.Background(), request(ids...))
		assert.Nil(t, err)
		assert.Len(t, res.Outcomes, 12)
		for i, o := range res.Outcomes {
			assert.Equal(t, ids[i], o.Ref.BoostId)
			assert.Equal(t, fmt.Sprintf("%d", 25*(i+1)), o.Claim.Amount.String())
		}
	})
}
