package cmd

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/internal/metrics"
	"github.com/snapshot-labs/boost-guard/internal/metrics/metricsTypes"
	"github.com/snapshot-labs/boost-guard/pkg/clients/graphql"
	"github.com/snapshot-labs/boost-guard/pkg/clients/hub"
	"github.com/snapshot-labs/boost-guard/pkg/clients/subgraph"
	"github.com/snapshot-labs/boost-guard/pkg/eligibility"
	"github.com/snapshot-labs/boost-guard/pkg/guard"
	"github.com/snapshot-labs/boost-guard/pkg/rewards"
	"github.com/snapshot-labs/boost-guard/pkg/vouchers"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

func newMetricsSink(cfg *config.Config, l *zap.Logger) (*metrics.MetricsSink, error) {
	clients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to setup metrics clients")
	}
	sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, clients)
	if err != nil {
		return nil, errors.Wrap(err, "failed to setup metrics sink")
	}
	_ = sink.Gauge(metricsTypes.Metric_Gauge_ConfiguredChains, float64(len(cfg.ConfiguredChains())), []metricsTypes.MetricsLabel{})
	return sink, nil
}

func newGraphqlClient(url string, source string, hc *http.Client, cfg *config.Config, ms *metrics.MetricsSink, l *zap.Logger) *graphql.Client {
	return graphql.NewClient(&graphql.ClientConfig{
		Url:        url,
		Source:     source,
		Timeout:    cfg.UpstreamConfig.Timeout,
		MaxRetries: cfg.UpstreamConfig.MaxRetries,
	}, hc, ms, l)
}

// newBoostGuard wires the guard to the hub, the subgraphs and, when a key is configured,
// the voucher signer. The returned address is empty when vouchers cannot be signed.
func newBoostGuard(cfg *config.Config, ms *metrics.MetricsSink, l *zap.Logger) (*guard.BoostGuard, string, error) {
	hc := &http.Client{}

	hubClient := hub.NewHubClient(newGraphqlClient(cfg.HubConfig.Url, "hub", hc, cfg, ms, l), l)

	var defaultSubgraph *graphql.Client
	if cfg.SubgraphConfig.Url != "" {
		defaultSubgraph = newGraphqlClient(cfg.SubgraphConfig.Url, "subgraph", hc, cfg, ms, l)
	}
	chainSubgraphs := orderedmap.New[config.ChainId, *graphql.Client]()
	if cfg.SubgraphConfig.ChainUrls != nil {
		for pair := cfg.SubgraphConfig.ChainUrls.Oldest(); pair != nil; pair = pair.Next() {
			chainSubgraphs.Set(pair.Key, newGraphqlClient(pair.Value, "subgraph", hc, cfg, ms, l))
		}
	}
	subgraphClient := subgraph.NewSubgraphClient(defaultSubgraph, chainSubgraphs, l)

	var claimSigner guard.ClaimSigner
	signerAddress := ""
	if cfg.SignerConfig.PrivateKey != "" {
		localSigner, err := vouchers.NewLocalSigner(cfg.SignerConfig.PrivateKey)
		if err != nil {
			return nil, "", err
		}
		voucherSigner := vouchers.NewVoucherSigner(localSigner, cfg, l)
		claimSigner = voucherSigner
		signerAddress = voucherSigner.Address()
		l.Sugar().Infow("Loaded voucher signer",
			zap.String("address", signerAddress),
			zap.Int("chains", len(cfg.ConfiguredChains())),
		)
	} else {
		l.Sugar().Warnw("No signing key configured, only reward estimates will be served")
	}

	bg := guard.NewBoostGuard(
		guard.Sources{
			Proposals:      hubClient,
			Votes:          hubClient,
			Boosts:         subgraphClient,
			EligibleVoters: hubClient,
		},
		claimSigner,
		eligibility.NewValidator(nil),
		rewards.NewRewardsCalculator(l),
		ms,
		cfg,
		l,
	)
	return bg, signerAddress, nil
}
