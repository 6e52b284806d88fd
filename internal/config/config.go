package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const ENV_PREFIX = "BOOST_GUARD"

type ChainId uint64

func (c ChainId) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

func ParseChainId(s string) (ChainId, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid chain id '%s'", s)
	}
	return ChainId(v), nil
}

type HttpConfig struct {
	Port               int
	RequestTimeout     time.Duration
	CorsAllowedOrigins []string
}

type HubConfig struct {
	Url string
}

type SubgraphConfig struct {
	Url string
	// per chain overrides of Url
	ChainUrls *orderedmap.OrderedMap[ChainId, string]
}

// UrlForChain returns the subgraph url indexing boosts deployed on the given chain.
func (s *SubgraphConfig) UrlForChain(chainId ChainId) string {
	if s.ChainUrls != nil {
		if url, ok := s.ChainUrls.Get(chainId); ok {
			return url
		}
	}
	return s.Url
}

type UpstreamConfig struct {
	Timeout    time.Duration
	MaxRetries int
}

type SignerConfig struct {
	PrivateKey         string
	DomainName         string
	DomainVersion      string
	VerifyingContracts *orderedmap.OrderedMap[ChainId, common.Address]
}

type GuardConfig struct {
	MaxConcurrency int
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type Config struct {
	Debug            bool
	HttpConfig       HttpConfig
	HubConfig        HubConfig
	SubgraphConfig   SubgraphConfig
	UpstreamConfig   UpstreamConfig
	SignerConfig     SignerConfig
	GuardConfig      GuardConfig
	PrometheusConfig PrometheusConfig
	DataDogConfig    DataDogConfig

	parseErrors []error
}

var (
	Debug = "debug"

	HttpPort               = "http.port"
	HttpRequestTimeout     = "http.request-timeout"
	HttpCorsAllowedOrigins = "http.cors-allowed-origins"

	HubUrl = "hub.url"

	SubgraphUrl       = "subgraph.url"
	SubgraphChainUrls = "subgraph.chain-urls"

	UpstreamTimeout    = "upstream.timeout"
	UpstreamMaxRetries = "upstream.max-retries"

	SignerPrivateKey         = "signer.private-key"
	SignerDomainName         = "signer.domain-name"
	SignerDomainVersion      = "signer.domain-version"
	SignerVerifyingContracts = "signer.verifying-contracts"

	GuardMaxConcurrency = "guard.max-concurrency"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample-rate"
)

// LegacyEnvVars maps config keys to the env var names used by earlier deployments of the guard.
var LegacyEnvVars = map[string]string{
	HttpPort:         "PORT",
	HubUrl:           "HUB_URL",
	SubgraphUrl:      "SUBGRAPH_URL",
	SignerPrivateKey: "PRIVATE_KEY",
}

const (
	DefaultHubUrl         = "https://testnet.hub.snapshot.org/graphql"
	DefaultDomainName     = "boost"
	DefaultDomainVersion  = "1"
	DefaultMaxConcurrency = 8
)

func NewConfig() *Config {
	cfg := &Config{
		Debug: viper.GetBool(normalizeFlagName(Debug)),

		HttpConfig: HttpConfig{
			Port:               viper.GetInt(normalizeFlagName(HttpPort)),
			RequestTimeout:     viper.GetDuration(normalizeFlagName(HttpRequestTimeout)),
			CorsAllowedOrigins: parseListValue(viper.GetString(normalizeFlagName(HttpCorsAllowedOrigins))),
		},

		HubConfig: HubConfig{
			Url: viper.GetString(normalizeFlagName(HubUrl)),
		},

		SubgraphConfig: SubgraphConfig{
			Url:       viper.GetString(normalizeFlagName(SubgraphUrl)),
			ChainUrls: orderedmap.New[ChainId, string](),
		},

		UpstreamConfig: UpstreamConfig{
			Timeout:    viper.GetDuration(normalizeFlagName(UpstreamTimeout)),
			MaxRetries: viper.GetInt(normalizeFlagName(UpstreamMaxRetries)),
		},

		SignerConfig: SignerConfig{
			PrivateKey:         viper.GetString(normalizeFlagName(SignerPrivateKey)),
			DomainName:         viper.GetString(normalizeFlagName(SignerDomainName)),
			DomainVersion:      viper.GetString(normalizeFlagName(SignerDomainVersion)),
			VerifyingContracts: orderedmap.New[ChainId, common.Address](),
		},

		GuardConfig: GuardConfig{
			MaxConcurrency: viper.GetInt(normalizeFlagName(GuardMaxConcurrency)),
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    viper.GetBool(normalizeFlagName(DataDogStatsdEnabled)),
				Url:        viper.GetString(normalizeFlagName(DataDogStatsdUrl)),
				SampleRate: viper.GetFloat64(normalizeFlagName(DataDogStatsdSampleRate)),
			},
		},
	}

	if urls, err := ParseChainUrls(viper.GetString(normalizeFlagName(SubgraphChainUrls))); err != nil {
		cfg.parseErrors = append(cfg.parseErrors, errors.Wrapf(err, "failed to parse %s", SubgraphChainUrls))
	} else {
		cfg.SubgraphConfig.ChainUrls = urls
	}
	if contracts, err := ParseVerifyingContracts(viper.GetString(normalizeFlagName(SignerVerifyingContracts))); err != nil {
		cfg.parseErrors = append(cfg.parseErrors, errors.Wrapf(err, "failed to parse %s", SignerVerifyingContracts))
	} else {
		cfg.SignerConfig.VerifyingContracts = contracts
	}
	return cfg
}

// Validate checks the settings required to serve signed vouchers.
func (c *Config) Validate() error {
	if len(c.parseErrors) > 0 {
		return c.parseErrors[0]
	}
	if c.HubConfig.Url == "" {
		return fmt.Errorf("%s is required", HubUrl)
	}
	if c.SubgraphConfig.Url == "" && (c.SubgraphConfig.ChainUrls == nil || c.SubgraphConfig.ChainUrls.Len() == 0) {
		return fmt.Errorf("%s or %s is required", SubgraphUrl, SubgraphChainUrls)
	}
	if c.GuardConfig.MaxConcurrency < 1 {
		return fmt.Errorf("%s must be at least 1", GuardMaxConcurrency)
	}
	return nil
}

func (c *Config) GetVerifyingContract(chainId ChainId) (common.Address, bool) {
	if c.SignerConfig.VerifyingContracts == nil {
		return common.Address{}, false
	}
	return c.SignerConfig.VerifyingContracts.Get(chainId)
}

// ConfiguredChains lists the chains vouchers can be signed for, in configuration order.
func (c *Config) ConfiguredChains() []ChainId {
	chains := make([]ChainId, 0)
	if c.SignerConfig.VerifyingContracts == nil {
		return chains
	}
	for pair := c.SignerConfig.VerifyingContracts.Oldest(); pair != nil; pair = pair.Next() {
		chains = append(chains, pair.Key)
	}
	return chains
}

func parseListValue(value string) []string {
	if value == "" {
		return []string{}
	}
	l := make([]string, 0)
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			l = append(l, s)
		}
	}
	return l
}

// parseChainMap parses "chainId=value,chainId=value" into an ordered map.
func parseChainMap(value string) (*orderedmap.OrderedMap[ChainId, string], error) {
	om := orderedmap.New[ChainId, string]()
	for _, entry := range parseListValue(value) {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("invalid chain entry '%s', expected <chainId>=<value>", entry)
		}
		chainId, err := ParseChainId(parts[0])
		if err != nil {
			return nil, err
		}
		if _, present := om.Set(chainId, strings.TrimSpace(parts[1])); present {
			return nil, fmt.Errorf("chain %s configured more than once", chainId)
		}
	}
	return om, nil
}

func ParseChainUrls(value string) (*orderedmap.OrderedMap[ChainId, string], error) {
	return parseChainMap(value)
}

func ParseVerifyingContracts(value string) (*orderedmap.OrderedMap[ChainId, common.Address], error) {
	raw, err := parseChainMap(value)
	if err != nil {
		return nil, err
	}
	contracts := orderedmap.New[ChainId, common.Address]()
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		if !common.IsHexAddress(pair.Value) {
			return nil, fmt.Errorf("invalid verifying contract '%s' for chain %s", pair.Value, pair.Key)
		}
		contracts.Set(pair.Key, common.HexToAddress(pair.Value))
	}
	return contracts, nil
}

func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}
