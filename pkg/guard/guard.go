// Package guard runs the voucher pipeline: fetch the proposal and the vote, check the
// voter's eligibility for every requested boost, compute the reward and optionally sign it.
package guard

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/internal/metrics"
	"github.com/snapshot-labs/boost-guard/internal/metrics/metricsTypes"
	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/eligibility"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
	"github.com/snapshot-labs/boost-guard/pkg/rewards"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Mode string

var (
	// compute rewards only
	Mode_Estimate Mode = "estimate"
	// compute and sign rewards
	Mode_Sign Mode = "sign"
)

type Request struct {
	ProposalId string
	Voter      string
	Boosts     []boostTypes.BoostRef
}

// Outcome is the result of a single requested boost. Exactly one of Claim and Rejection is set.
type Outcome struct {
	Ref       boostTypes.BoostRef
	Claim     *boostTypes.RewardClaim
	Rejection *rejection.Error
}

type Result struct {
	ProposalId string
	Voter      common.Address
	// Outcomes are in request order
	Outcomes []*Outcome
}

func (r *Result) Claims() []*boostTypes.RewardClaim {
	claims := make([]*boostTypes.RewardClaim, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Claim != nil {
			claims = append(claims, o.Claim)
		}
	}
	return claims
}

func (r *Result) Rejected() []*Outcome {
	rejected := make([]*Outcome, 0)
	for _, o := range r.Outcomes {
		if o.Rejection != nil {
			rejected = append(rejected, o)
		}
	}
	return rejected
}

type BoostGuard struct {
	sources      Sources
	signer       ClaimSigner
	validator    *eligibility.Validator
	calculator   *rewards.RewardsCalculator
	metricsSink  *metrics.MetricsSink
	globalConfig *config.Config
	logger       *zap.Logger
}

// NewBoostGuard wires the pipeline. signer may be nil, in which case only estimates are served.
func NewBoostGuard(
	sources Sources,
	signer ClaimSigner,
	validator *eligibility.Validator,
	calculator *rewards.RewardsCalculator,
	ms *metrics.MetricsSink,
	cfg *config.Config,
	l *zap.Logger,
) *BoostGuard {
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	return &BoostGuard{
		sources:      sources,
		signer:       signer,
		validator:    validator,
		calculator:   calculator,
		metricsSink:  ms,
		globalConfig: cfg,
		logger:       l,
	}
}

func (bg *BoostGuard) CanSign() bool {
	return bg.signer != nil
}

// GetRewards estimates the reward of every requested boost without signing anything.
func (bg *BoostGuard) GetRewards(ctx context.Context, req *Request) (*Result, error) {
	return bg.run(ctx, req, Mode_Estimate)
}

// CreateVouchers computes and signs the reward of every requested boost.
func (bg *BoostGuard) CreateVouchers(ctx context.Context, req *Request) (*Result, error) {
	return bg.run(ctx, req, Mode_Sign)
}

func (bg *BoostGuard) run(ctx context.Context, req *Request, mode Mode) (*Result, error) {
	start := time.Now()
	defer func() {
		_ = bg.metricsSink.Timing(metricsTypes.Metric_Timing_PipelineDuration, time.Since(start), []metricsTypes.MetricsLabel{
			{Name: "mode", Value: string(mode)},
		})
	}()

	result, err := bg.runPipeline(ctx, req, mode)
	if err != nil {
		r := rejection.From(err)
		_ = bg.metricsSink.Incr(metricsTypes.Metric_Incr_RequestFailed, []metricsTypes.MetricsLabel{
			{Name: "kind", Value: string(r.Kind)},
		}, 1)
		bg.logger.Sugar().Infow("Request rejected",
			zap.String("mode", string(mode)),
			zap.String("proposalId", req.ProposalId),
			zap.String("voter", req.Voter),
			zap.String("kind", string(r.Kind)),
			zap.String("reason", string(r.Reason)),
			zap.Error(err),
		)
		return nil, r
	}
	return result, nil
}

func (bg *BoostGuard) runPipeline(ctx context.Context, req *Request, mode Mode) (*Result, error) {
	voter, err := validateRequest(req)
	if err != nil {
		return nil, err
	}
	if mode == Mode_Sign && bg.signer == nil {
		return nil, rejection.New(rejection.Kind_Signing, rejection.Reason_SigningFailed, "no signing key configured")
	}

	proposal, vote, err := bg.fetchProposalAndVote(ctx, req)
	if err != nil {
		return nil, err
	}

	outcomes := make([]*Outcome, len(req.Boosts))
	g := &errgroup.Group{}
	g.SetLimit(bg.maxConcurrency())
	for i, ref := range req.Boosts {
		g.Go(func() error {
			outcomes[i] = bg.processBoost(ctx, mode, proposal, vote, voter, ref)
			return nil
		})
	}
	_ = g.Wait()

	return &Result{
		ProposalId: proposal.Id,
		Voter:      voter,
		Outcomes:   outcomes,
	}, nil
}

func (bg *BoostGuard) maxConcurrency() int {
	if bg.globalConfig == nil || bg.globalConfig.GuardConfig.MaxConcurrency < 1 {
		return config.DefaultMaxConcurrency
	}
	return bg.globalConfig.GuardConfig.MaxConcurrency
}

func validateRequest(req *Request) (common.Address, error) {
	if strings.TrimSpace(req.ProposalId) == "" {
		return common.Address{}, rejection.Validation(rejection.Reason_InvalidRequest, "proposal_id is required")
	}
	if !common.IsHexAddress(req.Voter) {
		return common.Address{}, rejection.Validation(rejection.Reason_InvalidRequest, "invalid voter address '%s'", req.Voter)
	}
	return common.HexToAddress(req.Voter), nil
}

// fetchProposalAndVote fetches both concurrently. Fetch failures are reported before the
// proposal checks, the proposal's own failure first.
func (bg *BoostGuard) fetchProposalAndVote(ctx context.Context, req *Request) (*boostTypes.Proposal, *boostTypes.Vote, error) {
	var proposal *boostTypes.Proposal
	var vote *boostTypes.Vote
	var proposalErr, voteErr error

	g := &errgroup.Group{}
	g.Go(func() error {
		proposal, proposalErr = bg.sources.Proposals.GetProposal(ctx, req.ProposalId)
		return nil
	})
	g.Go(func() error {
		vote, voteErr = bg.sources.Votes.GetVote(ctx, req.Voter, req.ProposalId)
		return nil
	})
	_ = g.Wait()

	if proposalErr != nil {
		return nil, nil, rejection.FromUpstream(proposalErr)
	}
	if voteErr != nil {
		return nil, nil, rejection.FromUpstream(voteErr)
	}
	if err := bg.validator.ValidateProposal(proposal); err != nil {
		return nil, nil, err
	}
	return proposal, vote, nil
}

func (bg *BoostGuard) processBoost(
	ctx context.Context,
	mode Mode,
	proposal *boostTypes.Proposal,
	vote *boostTypes.Vote,
	voter common.Address,
	ref boostTypes.BoostRef,
) *Outcome {
	claim, err := bg.claimBoost(ctx, mode, proposal, vote, voter, ref)
	if err != nil {
		r := rejection.From(err)
		_ = bg.metricsSink.Incr(metricsTypes.Metric_Incr_BoostRejected, []metricsTypes.MetricsLabel{
			{Name: "kind", Value: string(r.Kind)},
			{Name: "reason", Value: string(r.Reason)},
		}, 1)
		bg.logger.Sugar().Infow("Boost rejected",
			zap.String("boostId", ref.BoostId),
			zap.String("chainId", ref.ChainId.String()),
			zap.String("voter", voter.Hex()),
			zap.String("kind", string(r.Kind)),
			zap.String("reason", string(r.Reason)),
			zap.Error(err),
		)
		return &Outcome{Ref: ref, Rejection: r}
	}

	metric := metricsTypes.Metric_Incr_RewardEstimated
	if mode == Mode_Sign {
		metric = metricsTypes.Metric_Incr_VoucherIssued
	}
	_ = bg.metricsSink.Incr(metric, []metricsTypes.MetricsLabel{
		{Name: "chainId", Value: ref.ChainId.String()},
	}, 1)
	return &Outcome{Ref: ref, Claim: claim}
}

func (bg *BoostGuard) claimBoost(
	ctx context.Context,
	mode Mode,
	proposal *boostTypes.Proposal,
	vote *boostTypes.Vote,
	voter common.Address,
	ref boostTypes.BoostRef,
) (*boostTypes.RewardClaim, error) {
	boost, err := bg.sources.Boosts.GetBoost(ctx, ref.BoostId, ref.ChainId)
	if err != nil {
		return nil, rejection.FromUpstream(err)
	}
	if err := bg.validator.Validate(proposal, vote, boost); err != nil {
		return nil, err
	}

	var eligibleVoters *uint64
	if boost.Distribution.Type == boostTypes.DistributionType_Even && bg.sources.EligibleVoters != nil {
		count, err := bg.sources.EligibleVoters.CountEligibleVoters(ctx, proposal.Id, boost.Eligibility)
		if err != nil {
			return nil, rejection.FromUpstream(err)
		}
		eligibleVoters = &count
	}

	reward, err := bg.calculator.ComputeVoterReward(boost, proposal, vote, eligibleVoters)
	if err != nil {
		return nil, err
	}

	claim := &boostTypes.RewardClaim{
		BoostId:   ref.BoostId,
		ChainId:   ref.ChainId,
		Recipient: voter,
		Amount:    reward,
	}
	if mode == Mode_Sign {
		signature, err := bg.signer.Sign(claim)
		if err != nil {
			return nil, err
		}
		claim.Signature = signature
	}
	return claim, nil
}
