package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/internal/logger"
	"github.com/snapshot-labs/boost-guard/pkg/boostTypes"
	"github.com/snapshot-labs/boost-guard/pkg/guard"
	"github.com/snapshot-labs/boost-guard/pkg/vouchers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	OutputFormat_Json = "json"
	OutputFormat_Csv  = "csv"
)

// RewardRow is a single boost of a command line estimate.
type RewardRow struct {
	BoostId   string `csv:"boost_id" json:"boost_id"`
	ChainId   string `csv:"chain_id" json:"chain_id"`
	Status    string `csv:"status" json:"status"`
	Reward    string `csv:"reward" json:"reward,omitempty"`
	Signature string `csv:"signature" json:"signature,omitempty"`
	Kind      string `csv:"kind" json:"kind,omitempty"`
	Reason    string `csv:"reason" json:"reason,omitempty"`
	Message   string `csv:"message" json:"message,omitempty"`
}

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "Compute the boost rewards of a voter from the command line",
	Run: func(cmd *cobra.Command, args []string) {
		initRunCmd(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, Name: "rewards"})

		proposalId, _ := cmd.Flags().GetString("proposal")
		voter, _ := cmd.Flags().GetString("voter")
		boostFlags, _ := cmd.Flags().GetStringSlice("boost")
		sign, _ := cmd.Flags().GetBool("sign")
		output, _ := cmd.Flags().GetString("output")

		if err := cfg.Validate(); err != nil {
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}
		if output != OutputFormat_Json && output != OutputFormat_Csv {
			l.Sugar().Fatalw("Invalid output format", zap.String("output", output))
		}
		refs, err := parseBoostRefs(boostFlags)
		if err != nil {
			l.Sugar().Fatalw("Invalid boost", zap.Error(err))
		}

		sink, err := newMetricsSink(cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup metrics", zap.Error(err))
		}
		bg, _, err := newBoostGuard(cfg, sink, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup boost guard", zap.Error(err))
		}

		req := &guard.Request{ProposalId: proposalId, Voter: voter, Boosts: refs}
		var result *guard.Result
		if sign {
			result, err = bg.CreateVouchers(context.Background(), req)
		} else {
			result, err = bg.GetRewards(context.Background(), req)
		}
		if err != nil {
			l.Sugar().Fatalw("Failed to compute rewards", zap.Error(err))
		}

		if err := writeRewardRows(os.Stdout, output, convertResultToRows(result)); err != nil {
			l.Sugar().Fatalw("Failed to write rewards", zap.Error(err))
		}
		sink.Flush()
	},
}

func init() {
	rewardsCmd.Flags().String("proposal", "", "Proposal id (required)")
	rewardsCmd.Flags().String("voter", "", "Voter address (required)")
	rewardsCmd.Flags().StringSlice("boost", []string{}, `Boost as "<boostId>:<chainId>", may be repeated (required)`)
	rewardsCmd.Flags().Bool("sign", false, "Sign the vouchers")
	rewardsCmd.Flags().String("output", OutputFormat_Json, `Output format, "json" or "csv"`)

	_ = rewardsCmd.MarkFlagRequired("proposal")
	_ = rewardsCmd.MarkFlagRequired("voter")
	_ = rewardsCmd.MarkFlagRequired("boost")
}

func parseBoostRefs(values []string) ([]boostTypes.BoostRef, error) {
	refs := make([]boostTypes.BoostRef, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid boost '%s', expected <boostId>:<chainId>", v)
		}
		chainId, err := config.ParseChainId(parts[1])
		if err != nil {
			return nil, err
		}
		refs = append(refs, boostTypes.BoostRef{BoostId: parts[0], ChainId: chainId})
	}
	return refs, nil
}

func convertResultToRows(result *guard.Result) []*RewardRow {
	rows := make([]*RewardRow, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		row := &RewardRow{
			BoostId: o.Ref.BoostId,
			ChainId: o.Ref.ChainId.String(),
		}
		if o.Claim != nil {
			row.Status = "eligible"
			row.Reward = o.Claim.Amount.String()
			if o.Claim.Signature != nil {
				row.Signature = vouchers.EncodeSignature(o.Claim.Signature)
			}
		} else {
			row.Status = "rejected"
			row.Kind = string(o.Rejection.Kind)
			row.Reason = string(o.Rejection.Reason)
			row.Message = o.Rejection.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

func writeRewardRows(w io.Writer, format string, rows []*RewardRow) error {
	switch format {
	case OutputFormat_Csv:
		return errors.Wrap(gocsv.Marshal(rows, w), "failed to write csv")
	case OutputFormat_Json:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return errors.Wrap(encoder.Encode(rows), "failed to write json")
	}
	return fmt.Errorf("unsupported output format '%s'", format)
}
