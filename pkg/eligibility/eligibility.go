package eligibility

import (
	"strings"
	"time"

	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
)

var SupportedProposalTypes = []boostTypes.ProposalType{
	boostTypes.ProposalType_SingleChoice,
	boostTypes.ProposalType_Basic,
}

// Validator gates voucher issuance. It never fetches data and has no side effects.
type Validator struct {
	now func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// ValidateProposal runs the request-wide checks. The start time is left to the claiming contract.
func (v *Validator) ValidateProposal(proposal *boostTypes.Proposal) error {
	if err := v.ValidateEnded(proposal); err != nil {
		return err
	}
	return ValidateType(proposal.Type)
}

func (v *Validator) ValidateEnded(proposal *boostTypes.Proposal) error {
	current := v.now()
	if current.Before(proposal.End) {
		return rejection.Validation(rejection.Reason_NotEnded,
			"proposal has not ended yet: %d > %d", proposal.End.Unix(), current.Unix())
	}
	return nil
}

func ValidateType(proposalType boostTypes.ProposalType) error {
	for _, t := range SupportedProposalTypes {
		if proposalType == t {
			return nil
		}
	}
	return rejection.Validation(rejection.Reason_UnsupportedType,
		"`%s` proposals are not eligible for boosting", proposalType)
}

func ValidateChoice(choice uint64, e boostTypes.Eligibility) error {
	switch e.Type {
	case boostTypes.EligibilityType_Incentive:
		return nil
	case boostTypes.EligibilityType_Bribe:
		if choice != e.Choice {
			return rejection.Validation(rejection.Reason_ChoiceMismatch,
				"voter voted %d but needed to vote %d to be eligible", choice, e.Choice)
		}
		return nil
	default:
		return rejection.Validation(rejection.Reason_InvalidRequest, "unknown eligibility type '%s'", e.Type)
	}
}

// ValidateBoost runs the checks that depend on the requested boost. Proposal ids are hex
// and compared case-insensitively.
func ValidateBoost(proposal *boostTypes.Proposal, vote *boostTypes.Vote, boost *boostTypes.Boost) error {
	if !strings.EqualFold(boost.ProposalId, proposal.Id) {
		return rejection.Validation(rejection.Reason_ProposalMismatch,
			"boost %s is bound to proposal %s", boost.Id, boost.ProposalId)
	}
	return ValidateChoice(vote.Choice, boost.Eligibility)
}

// Validate runs every check for a single (proposal, vote, boost) triple.
func (v *Validator) Validate(proposal *boostTypes.Proposal, vote *boostTypes.Vote, boost *boostTypes.Boost) error {
	if err := v.ValidateProposal(proposal); err != nil {
		return err
	}
	return ValidateBoost(proposal, vote, boost)
}
