package rpcServer

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/guard"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
	"github.com/snapshot-labs/boost-guard/pkg/types/numbers"
	"github.com/snapshot-labs/boost-guard/pkg/vouchers"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

type VoucherRequest struct {
	ProposalId   string `json:"proposal_id"`
	VoterAddress string `json:"voter_address"`
	// pairs of [boost_id, chain_id]
	Boosts [][]numbers.Scalar `json:"boosts"`
}

type ClaimResponse struct {
	Signature string `json:"signature,omitempty"`
	Reward    string `json:"reward"`
	ChainId   string `json:"chain_id"`
	BoostId   string `json:"boost_id"`
}

type RejectedResponse struct {
	BoostId string `json:"boost_id"`
	ChainId string `json:"chain_id"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type DetailedResponse struct {
	Claims   []*ClaimResponse    `json:"claims"`
	Rejected []*RejectedResponse `json:"rejected"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
	RequestId string `json:"request_id,omitempty"`
}

func (rpc *RpcServer) CreateVouchers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rpc.handleVoucherRequest(w, r, guard.Mode_Sign)
}

func (rpc *RpcServer) GetRewards(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rpc.handleVoucherRequest(w, r, guard.Mode_Estimate)
}

// handleVoucherRequest serves both voucher routes. The default response is the array of
// claims; ?include_rejected=true also lists the boosts that were skipped and why.
func (rpc *RpcServer) handleVoucherRequest(w http.ResponseWriter, r *http.Request, mode guard.Mode) {
	includeRejected, err := parseIncludeRejected(r)
	if err != nil {
		rpc.writeError(w, r, err)
		return
	}
	req, err := parseVoucherRequest(r)
	if err != nil {
		rpc.writeError(w, r, err)
		return
	}

	var result *guard.Result
	if mode == guard.Mode_Sign {
		result, err = rpc.guard.CreateVouchers(r.Context(), req)
	} else {
		result, err = rpc.guard.GetRewards(r.Context(), req)
	}
	if err != nil {
		rpc.writeError(w, r, err)
		return
	}

	claims := make([]*ClaimResponse, 0)
	for _, c := range result.Claims() {
		claims = append(claims, convertClaim(c))
	}
	if !includeRejected {
		rpc.writeJson(w, http.StatusOK, claims)
		return
	}

	rejected := make([]*RejectedResponse, 0)
	for _, o := range result.Rejected() {
		rejected = append(rejected, &RejectedResponse{
			BoostId: o.Ref.BoostId,
			ChainId: o.Ref.ChainId.String(),
			Kind:    string(o.Rejection.Kind),
			Reason:  string(o.Rejection.Reason),
			Message: o.Rejection.Error(),
		})
	}
	rpc.writeJson(w, http.StatusOK, &DetailedResponse{Claims: claims, Rejected: rejected})
}

func parseIncludeRejected(r *http.Request) (bool, error) {
	value := r.URL.Query().Get("include_rejected")
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, rejection.Validation(rejection.Reason_InvalidRequest, "invalid include_rejected '%s'", value)
	}
	return b, nil
}

func parseVoucherRequest(r *http.Request) (*guard.Request, error) {
	body := &VoucherRequest{}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(body); err != nil {
		return nil, rejection.Wrap(err, rejection.Kind_Validation, rejection.Reason_InvalidRequest, "invalid request body")
	}

	refs := make([]boostTypes.BoostRef, 0, len(body.Boosts))
	for i, pair := range body.Boosts {
		if len(pair) != 2 || pair[0] == "" {
			return nil, rejection.Validation(rejection.Reason_InvalidRequest, "boosts[%d] must be [boost_id, chain_id]", i)
		}
		chainId, err := config.ParseChainId(pair[1].String())
		if err != nil {
			return nil, rejection.Wrap(err, rejection.Kind_Validation, rejection.Reason_InvalidRequest, "boosts[%d] has an invalid chain id", i)
		}
		refs = append(refs, boostTypes.BoostRef{BoostId: pair[0].String(), ChainId: chainId})
	}
	return &guard.Request{
		ProposalId: body.ProposalId,
		Voter:      body.VoterAddress,
		Boosts:     refs,
	}, nil
}

func convertClaim(c *boostTypes.RewardClaim) *ClaimResponse {
	res := &ClaimResponse{
		Reward:  c.Amount.String(),
		ChainId: c.ChainId.String(),
		BoostId: c.BoostId,
	}
	if c.Signature != nil {
		res.Signature = vouchers.EncodeSignature(c.Signature)
	}
	return res
}

// grpcCode classifies a request-wide failure.
func grpcCode(r *rejection.Error) codes.Code {
	switch r.Kind {
	case rejection.Kind_Validation:
		if r.Reason == rejection.Reason_NotEnded {
			return codes.FailedPrecondition
		}
		return codes.InvalidArgument
	case rejection.Kind_Upstream:
		return codes.Unavailable
	}
	return codes.Internal
}

// HttpStatus maps a request-wide failure to its HTTP status. Upstream failures are reported
// as 502 since the guard itself is healthy.
func HttpStatus(r *rejection.Error) int {
	code := grpcCode(r)
	if code == codes.Unavailable {
		return http.StatusBadGateway
	}
	return runtime.HTTPStatusFromCode(code)
}

func (rpc *RpcServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rej := rejection.From(err)
	status := HttpStatus(rej)
	if status >= http.StatusInternalServerError {
		rpc.Logger.Sugar().Errorw("Request failed",
			zap.String("requestId", RequestIdFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	rpc.writeJson(w, status, &ErrorResponse{
		Error:     rej.Error(),
		Kind:      string(rej.Kind),
		Reason:    string(rej.Reason),
		RequestId: RequestIdFromContext(r.Context()),
	})
}

func (rpc *RpcServer) writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rpc.Logger.Sugar().Errorw("Failed to write response", zap.Error(err))
	}
}
