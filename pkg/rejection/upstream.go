package rejection

import (
	"context"

	"github.com/pkg/errors"
)

// Sentinels returned by the hub, subgraph and GraphQL clients.
var (
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrVoteNotFound        = errors.New("voter has not voted for this proposal")
	ErrBoostNotFound       = errors.New("boost not found")
	ErrUnsupportedStrategy = errors.New("unsupported boost strategy")
	ErrUnknownChain        = errors.New("no subgraph configured for chain")
	ErrMalformedResponse   = errors.New("malformed response")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// FromUpstream classifies an error returned by a data source. Answers the source gave
// definitively (something does not exist) are validation failures; everything else is
// an upstream failure.
func FromUpstream(err error) *Error {
	if err == nil {
		return nil
	}
	var r *Error
	if errors.As(err, &r) {
		return r
	}
	switch {
	case errors.Is(err, ErrProposalNotFound):
		return Wrap(err, Kind_Validation, Reason_ProposalNotFound, "proposal not found")
	case errors.Is(err, ErrVoteNotFound):
		return Wrap(err, Kind_Validation, Reason_VoteNotFound, "voter has not voted")
	case errors.Is(err, ErrBoostNotFound):
		return Wrap(err, Kind_Validation, Reason_BoostNotFound, "boost not found")
	case errors.Is(err, ErrUnsupportedStrategy):
		return Wrap(err, Kind_Validation, Reason_UnsupportedStrategy, "boost strategy is not supported")
	case errors.Is(err, ErrUnknownChain):
		return Wrap(err, Kind_Validation, Reason_UnknownChain, "chain is not supported")
	case errors.Is(err, ErrMalformedResponse):
		return Upstream(err, Reason_MalformedResponse, "malformed upstream response")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Upstream(err, Reason_UpstreamUnavailable, "upstream request aborted")
	}
	return Upstream(err, Reason_UpstreamUnavailable, "upstream unavailable")
}
