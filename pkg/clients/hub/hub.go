// Package hub reads proposals and votes from the snapshot hub GraphQL API.
package hub

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/clients/graphql"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
	"go.uber.org/zap"
)

var (
	ErrProposalNotFound = rejection.ErrProposalNotFound
	ErrVoteNotFound     = rejection.ErrVoteNotFound
)

// votesPageSize is the largest page the hub serves.
const votesPageSize = 1000

const proposalQuery = `query Proposal($id: String!) {
  proposal(id: $id) {
    id
    type
    end
    scores_total
  }
}`

const voteQuery = `query Votes($proposal: String!, $voter: String!) {
  votes(first: 1, where: {proposal: $proposal, voter: $voter}) {
    voter
    choice
    vp
  }
}`

// votersQuery pages on the creation time instead of skip, which the hub caps.
const votersQuery = `query Voters($proposal: String!, $first: Int!, $created: Int!) {
  votes(first: $first, where: {proposal: $proposal, created_gte: $created}, orderBy: "created", orderDirection: asc) {
    voter
    choice
    created
  }
}`

type proposalResponse struct {
	Proposal *struct {
		Id          string           `json:"id"`
		Type        *string          `json:"type"`
		End         *int64           `json:"end"`
		ScoresTotal *decimal.Decimal `json:"scores_total"`
	} `json:"proposal"`
}

type vote struct {
	Voter   string           `json:"voter"`
	Choice  json.RawMessage  `json:"choice"`
	Vp      *decimal.Decimal `json:"vp"`
	Created int64            `json:"created"`
}

type votesResponse struct {
	Votes []*vote `json:"votes"`
}

type HubClient struct {
	Logger *zap.Logger
	client *graphql.Client
}

func NewHubClient(client *graphql.Client, l *zap.Logger) *HubClient {
	return &HubClient{
		Logger: l,
		client: client,
	}
}

func (hc *HubClient) GetProposal(ctx context.Context, proposalId string) (*boostTypes.Proposal, error) {
	res := &proposalResponse{}
	if err := hc.client.Query(ctx, proposalQuery, map[string]interface{}{"id": proposalId}, res); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch proposal %s", proposalId)
	}
	p := res.Proposal
	if p == nil {
		return nil, errors.Wrapf(ErrProposalNotFound, "proposal %s", proposalId)
	}
	if p.Type == nil {
		return nil, errors.Wrap(graphql.ErrMalformedResponse, "missing proposal type from the hub")
	}
	if p.End == nil {
		return nil, errors.Wrap(graphql.ErrMalformedResponse, "missing proposal end from the hub")
	}
	if p.ScoresTotal == nil {
		return nil, errors.Wrap(graphql.ErrMalformedResponse, "missing proposal score from the hub")
	}
	if p.ScoresTotal.IsNegative() {
		return nil, errors.Wrapf(graphql.ErrMalformedResponse, "negative proposal score %s", p.ScoresTotal.String())
	}

	id := p.Id
	if id == "" {
		id = proposalId
	}
	return &boostTypes.Proposal{
		Id:          id,
		Type:        boostTypes.ProposalType(*p.Type),
		End:         time.Unix(*p.End, 0).UTC(),
		ScoresTotal: *p.ScoresTotal,
	}, nil
}

func (hc *HubClient) GetVote(ctx context.Context, voter string, proposalId string) (*boostTypes.Vote, error) {
	res := &votesResponse{}
	variables := map[string]interface{}{
		"proposal": proposalId,
		"voter":    voter,
	}
	if err := hc.client.Query(ctx, voteQuery, variables, res); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch vote of %s on %s", voter, proposalId)
	}
	if len(res.Votes) == 0 || res.Votes[0] == nil {
		return nil, errors.Wrapf(ErrVoteNotFound, "voter %s, proposal %s", voter, proposalId)
	}
	v := res.Votes[0]
	if v.Vp == nil {
		return nil, errors.Wrap(graphql.ErrMalformedResponse, "missing vp from the hub")
	}
	if v.Vp.IsNegative() {
		return nil, errors.Wrapf(graphql.ErrMalformedResponse, "negative vp %s", v.Vp.String())
	}
	choice, err := parseChoice(v.Choice)
	if err != nil {
		return nil, err
	}

	address := v.Voter
	if address == "" {
		address = voter
	}
	return &boostTypes.Vote{
		Voter:       address,
		ProposalId:  proposalId,
		Choice:      choice,
		VotingPower: *v.Vp,
	}, nil
}

// CountEligibleVoters pages through every vote of the proposal and counts the voters the
// eligibility accepts. Votes sharing the cursor timestamp come back on the next page and are
// counted once.
func (hc *HubClient) CountEligibleVoters(ctx context.Context, proposalId string, eligibility boostTypes.Eligibility) (uint64, error) {
	var count uint64
	seen := make(map[string]struct{})
	var created int64
	for {
		res := &votesResponse{}
		variables := map[string]interface{}{
			"proposal": proposalId,
			"first":    votesPageSize,
			"created":  created,
		}
		if err := hc.client.Query(ctx, votersQuery, variables, res); err != nil {
			return 0, errors.Wrapf(err, "failed to page votes of %s from %d", proposalId, created)
		}
		fresh := 0
		for _, v := range res.Votes {
			if v == nil {
				continue
			}
			if v.Created > created {
				created = v.Created
			}
			voter := strings.ToLower(v.Voter)
			if _, ok := seen[voter]; ok {
				continue
			}
			seen[voter] = struct{}{}
			fresh++
			if eligibility.Type == boostTypes.EligibilityType_Bribe {
				choice, err := parseChoice(v.Choice)
				if err != nil || choice != eligibility.Choice {
					continue
				}
			}
			count++
		}
		if len(res.Votes) < votesPageSize {
			break
		}
		if fresh == 0 {
			return 0, errors.Wrapf(graphql.ErrMalformedResponse, "more than %d votes of %s created at %d", votesPageSize, proposalId, created)
		}
	}
	hc.Logger.Sugar().Debugw("Counted eligible voters",
		zap.String("proposalId", proposalId),
		zap.String("eligibility", string(eligibility.Type)),
		zap.Uint64("count", count),
	)
	return count, nil
}

// parseChoice accepts the numeric choice of single-choice and basic proposals.
func parseChoice(raw json.RawMessage) (uint64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, errors.Wrap(graphql.ErrMalformedResponse, "missing choice from the hub")
	}
	s = strings.Trim(s, `"`)
	choice, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(graphql.ErrMalformedResponse, "unsupported choice %s", string(raw))
	}
	return choice, nil
}
