// Package awsauth turns the CLI's credential settings into AWS configs and
// provides the account-level collaborator used by the vpc package: caller
// identity, enabled regions and region-scoped EC2 clients.
package awsauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	stscredsv2 "github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/cyqual-sec/aws-delete-default-vpc/vpc"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	StrategyDefaults   = "defaults"
	StrategyProfile    = "profile"
	StrategyAccessKey  = "access-key"
	StrategyExternalID = "external-id"

	// FallbackRegion is used for account-level calls when neither the flags
	// nor the shared config name a region
	FallbackRegion = "us-east-1"
)

type AuthConfig struct {
	Strategy        string
	AccessKeyID     string
	SecretAccessKey string
	ExternalID      string
	TargetRoleARN   string
	Profile         string

	// BootstrapRegion is the region used for STS and DescribeRegions
	BootstrapRegion string
}

// ResolvedStrategy returns the strategy to use. A profile on its own selects
// the profile strategy so that `--profile foo` just works.
func (c AuthConfig) ResolvedStrategy() string {
	if (c.Strategy == "" || c.Strategy == StrategyDefaults) && c.Profile != "" {
		return StrategyProfile
	}
	if c.Strategy == "" {
		return StrategyDefaults
	}
	return c.Strategy
}

// Validate checks that the fields required by the strategy are set and the
// ones that would be ignored are not
func (c AuthConfig) Validate() error {
	switch s := c.ResolvedStrategy(); s {
	case StrategyDefaults:
		return nil
	case StrategyAccessKey:
		if c.AccessKeyID == "" {
			return errors.New("with access-key strategy, aws-access-key-id cannot be blank")
		}
		if c.SecretAccessKey == "" {
			return errors.New("with access-key strategy, aws-secret-access-key cannot be blank")
		}
		if c.ExternalID != "" || c.TargetRoleARN != "" {
			return errors.New("with access-key strategy, aws-external-id and aws-target-role-arn must be blank")
		}
		if c.Profile != "" {
			return errors.New("with access-key strategy, profile must be blank")
		}
	case StrategyExternalID:
		if c.AccessKeyID != "" || c.SecretAccessKey != "" {
			return errors.New("with external-id strategy, aws-access-key-id and aws-secret-access-key must be blank")
		}
		if c.ExternalID == "" {
			return errors.New("with external-id strategy, aws-external-id cannot be blank")
		}
		if c.TargetRoleARN == "" {
			return errors.New("with external-id strategy, aws-target-role-arn cannot be blank")
		}
	case StrategyProfile:
		if c.AccessKeyID != "" || c.SecretAccessKey != "" {
			return errors.New("with profile strategy, aws-access-key-id and aws-secret-access-key must be blank")
		}
		if c.ExternalID != "" || c.TargetRoleARN != "" {
			return errors.New("with profile strategy, aws-external-id and aws-target-role-arn must be blank")
		}
		if c.Profile == "" {
			return errors.New("with profile strategy, profile cannot be blank")
		}
	default:
		return fmt.Errorf("invalid aws-access-strategy %q", s)
	}

	return nil
}

// AWSConfig loads an AWS config for the chosen strategy. No network calls
// are made: credentials are resolved lazily by the SDK.
func (c AuthConfig) AWSConfig(ctx context.Context) (aws.Config, error) {
	if err := c.Validate(); err != nil {
		return aws.Config{}, err
	}

	options := []func(*config.LoadOptions) error{
		config.WithAppID("aws-delete-default-vpc"),
		config.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if c.BootstrapRegion != "" {
		options = append(options, config.WithRegion(c.BootstrapRegion))
	}

	switch c.ResolvedStrategy() {
	case StrategyAccessKey:
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	case StrategyProfile:
		log.WithField("profile", c.Profile).Info("Attempting to connect as profile")
		options = append(options, config.WithSharedConfigProfile(c.Profile))
	case StrategyExternalID:
		assumeConfig, err := config.LoadDefaultConfig(ctx, options...)
		if err != nil {
			return aws.Config{}, fmt.Errorf("could not load default config from environment: %w", err)
		}
		if assumeConfig.Region == "" {
			assumeConfig.Region = FallbackRegion
		}

		options = append(options, config.WithCredentialsProvider(aws.NewCredentialsCache(
			stscredsv2.NewAssumeRoleProvider(
				sts.NewFromConfig(assumeConfig),
				c.TargetRoleARN,
				func(aro *stscredsv2.AssumeRoleOptions) {
					aro.ExternalID = &c.ExternalID
				},
			)),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return aws.Config{}, err
	}

	if cfg.Region == "" {
		log.WithField("region", FallbackRegion).Debug("No region configured, using fallback region for account level calls")
		cfg.Region = FallbackRegion
	}

	return cfg, nil
}

// stsClient and regionClient are the parts of the STS and EC2 APIs used
// before any region is processed
type stsClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type regionClient interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// Account implements vpc.Account on top of a loaded AWS config
type Account struct {
	cfg     aws.Config
	sts     stsClient
	regions regionClient
}

var _ vpc.Account = (*Account)(nil)

func NewAccount(cfg aws.Config) *Account {
	return &Account{
		cfg:     cfg,
		sts:     sts.NewFromConfig(cfg),
		regions: ec2.NewFromConfig(cfg),
	}
}

func (a *Account) CallerIdentity(ctx context.Context) (vpc.Identity, error) {
	out, err := a.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return vpc.Identity{}, err
	}

	return vpc.Identity{
		Account: aws.ToString(out.Account),
		UserID:  aws.ToString(out.UserId),
		ARN:     aws.ToString(out.Arn),
	}, nil
}

// EnabledRegions lists the regions enabled for the account, in the order
// EC2 reports them
func (a *Account) EnabledRegions(ctx context.Context) ([]string, error) {
	out, err := a.regions.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		name := aws.ToString(r.RegionName)
		log.WithField("region", name).Debug("Found region")
		regions = append(regions, name)
	}

	return regions, nil
}

// ForRegion returns a new EC2 client bound to region, sharing the account's
// credentials
func (a *Account) ForRegion(region string) (vpc.EC2Client, error) {
	if region == "" {
		return nil, errors.New("region cannot be blank")
	}

	return ec2.NewFromConfig(a.cfg, func(o *ec2.Options) {
		o.Region = region
	}), nil
}
