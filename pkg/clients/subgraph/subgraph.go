// Package subgraph reads boost definitions from the boost subgraph of each chain.
package subgraph

import (
	"context"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/clients/graphql"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
	"github.com/snapshot-labs/boost-guard/pkg/types/numbers"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

var (
	ErrBoostNotFound       = rejection.ErrBoostNotFound
	ErrUnsupportedStrategy = rejection.ErrUnsupportedStrategy
	ErrNoSubgraphForChain  = rejection.ErrUnknownChain
)

const boostQuery = `query Boost($id: String!) {
  boost(id: $id) {
    id
    chainId
    poolSize
    token {
      decimals
    }
    strategy {
      name
      params {
        version
        proposal
        eligibility {
          type
          choice
        }
        distribution {
          type
          limit
        }
      }
    }
  }
}`

type boostResponse struct {
	Boost *struct {
		Id       numbers.Scalar `json:"id"`
		ChainId  numbers.Scalar `json:"chainId"`
		PoolSize numbers.Scalar `json:"poolSize"`
		Token    struct {
			Decimals numbers.Scalar `json:"decimals"`
		} `json:"token"`
		Strategy *struct {
			Name   string `json:"name"`
			Params *struct {
				Version     numbers.Scalar `json:"version"`
				Proposal    string         `json:"proposal"`
				Eligibility struct {
					Type   string         `json:"type"`
					Choice numbers.Scalar `json:"choice"`
				} `json:"eligibility"`
				Distribution struct {
					Type  string         `json:"type"`
					Limit numbers.Scalar `json:"limit"`
				} `json:"distribution"`
			} `json:"params"`
		} `json:"strategy"`
	} `json:"boost"`
}

type SubgraphClient struct {
	Logger        *zap.Logger
	defaultClient *graphql.Client
	chainClients  *orderedmap.OrderedMap[config.ChainId, *graphql.Client]
}

// NewSubgraphClient routes each chain to its own client, falling back to defaultClient
// for chains without one. defaultClient may be nil.
func NewSubgraphClient(
	defaultClient *graphql.Client,
	chainClients *orderedmap.OrderedMap[config.ChainId, *graphql.Client],
	l *zap.Logger,
) *SubgraphClient {
	if chainClients == nil {
		chainClients = orderedmap.New[config.ChainId, *graphql.Client]()
	}
	return &SubgraphClient{
		Logger:        l,
		defaultClient: defaultClient,
		chainClients:  chainClients,
	}
}

func (sc *SubgraphClient) clientForChain(chainId config.ChainId) (*graphql.Client, error) {
	if c, ok := sc.chainClients.Get(chainId); ok {
		return c, nil
	}
	if sc.defaultClient != nil {
		return sc.defaultClient, nil
	}
	return nil, errors.Wrapf(ErrNoSubgraphForChain, "chain %s", chainId)
}

func (sc *SubgraphClient) GetBoost(ctx context.Context, boostId string, chainId config.ChainId) (*boostTypes.Boost, error) {
	client, err := sc.clientForChain(chainId)
	if err != nil {
		return nil, err
	}

	res := &boostResponse{}
	if err := client.Query(ctx, boostQuery, map[string]interface{}{"id": boostId}, res); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch boost %s on chain %s from %s", boostId, chainId, client.Url())
	}
	b := res.Boost
	if b == nil {
		return nil, errors.Wrapf(ErrBoostNotFound, "boost %s on chain %s", boostId, chainId)
	}
	if b.ChainId != "" {
		served, err := config.ParseChainId(string(b.ChainId))
		if err != nil {
			return nil, errors.Wrap(graphql.ErrMalformedResponse, err.Error())
		}
		if served != chainId {
			return nil, errors.Wrapf(ErrBoostNotFound, "boost %s belongs to chain %s, not %s", boostId, served, chainId)
		}
	}
	if b.Strategy == nil || b.Strategy.Params == nil {
		return nil, errors.Wrapf(graphql.ErrMalformedResponse, "boost %s has no strategy", boostId)
	}
	if boostTypes.BoostStrategy(b.Strategy.Name) != boostTypes.BoostStrategy_Proposal {
		return nil, errors.Wrapf(ErrUnsupportedStrategy, "'%s'", b.Strategy.Name)
	}
	params := b.Strategy.Params

	eligibility, err := parseEligibility(params.Eligibility.Type, string(params.Eligibility.Choice))
	if err != nil {
		return nil, err
	}
	distribution, err := parseDistribution(params.Distribution.Type, string(params.Distribution.Limit))
	if err != nil {
		return nil, err
	}
	poolSize, err := numbers.ParseUnits(string(b.PoolSize))
	if err != nil {
		return nil, errors.Wrapf(graphql.ErrMalformedResponse, "failed to parse pool size: %s", err)
	}
	decimals, err := strconv.ParseUint(string(b.Token.Decimals), 10, 8)
	if err != nil {
		return nil, errors.Wrapf(graphql.ErrMalformedResponse, "failed to parse decimals: %s", err)
	}

	id := string(b.Id)
	if id == "" {
		id = boostId
	}
	return &boostTypes.Boost{
		Id:           id,
		ChainId:      chainId,
		Strategy:     boostTypes.BoostStrategy_Proposal,
		Version:      string(params.Version),
		ProposalId:   params.Proposal,
		Eligibility:  eligibility,
		Distribution: distribution,
		PoolSize:     poolSize,
		Decimals:     uint8(decimals),
	}, nil
}

func parseEligibility(eligibilityType string, choice string) (boostTypes.Eligibility, error) {
	switch boostTypes.EligibilityType(eligibilityType) {
	case boostTypes.EligibilityType_Incentive:
		return boostTypes.IncentiveEligibility(), nil
	case boostTypes.EligibilityType_Bribe:
		if choice == "" {
			return boostTypes.Eligibility{}, errors.Wrap(graphql.ErrMalformedResponse, "bribe eligibility without choice")
		}
		c, err := strconv.ParseUint(choice, 10, 64)
		if err != nil {
			return boostTypes.Eligibility{}, errors.Wrapf(graphql.ErrMalformedResponse, "invalid bribe choice '%s'", choice)
		}
		return boostTypes.BribeEligibility(c), nil
	}
	return boostTypes.Eligibility{}, errors.Wrapf(graphql.ErrMalformedResponse, "invalid eligibility '%s'", eligibilityType)
}

func parseDistribution(distributionType string, limit string) (boostTypes.Distribution, error) {
	switch boostTypes.DistributionType(distributionType) {
	case boostTypes.DistributionType_Weighted:
		var l *big.Int
		if limit != "" {
			parsed, err := numbers.ParseUnits(limit)
			if err != nil {
				return boostTypes.Distribution{}, errors.Wrapf(graphql.ErrMalformedResponse, "invalid distribution limit '%s'", limit)
			}
			l = parsed
		}
		return boostTypes.WeightedDistribution(l), nil
	case boostTypes.DistributionType_Even:
		return boostTypes.EvenDistribution(), nil
	}
	return boostTypes.Distribution{}, errors.Wrapf(graphql.ErrMalformedResponse, "invalid distribution '%s'", distributionType)
}
