package awsauth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv stops the SDK from picking up the developer's own AWS setup
func isolateEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	return dir
}

func TestResolvedStrategy(t *testing.T) {
	tests := []struct {
		name string
		cfg  AuthConfig
		want string
	}{
		{name: "empty", cfg: AuthConfig{}, want: StrategyDefaults},
		{name: "defaults", cfg: AuthConfig{Strategy: StrategyDefaults}, want: StrategyDefaults},
		{name: "profile only", cfg: AuthConfig{Profile: "prod"}, want: StrategyProfile},
		{name: "defaults with profile", cfg: AuthConfig{Strategy: StrategyDefaults, Profile: "prod"}, want: StrategyProfile},
		{name: "explicit access key", cfg: AuthConfig{Strategy: StrategyAccessKey}, want: StrategyAccessKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ResolvedStrategy())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AuthConfig
		wantErr bool
	}{
		{name: "defaults", cfg: AuthConfig{}},
		{name: "profile", cfg: AuthConfig{Profile: "prod"}},
		{name: "access key", cfg: AuthConfig{Strategy: StrategyAccessKey, AccessKeyID: "AKID", SecretAccessKey: "secret"}},
		{name: "access key missing secret", cfg: AuthConfig{Strategy: StrategyAccessKey, AccessKeyID: "AKID"}, wantErr: true},
		{name: "access key with role", cfg: AuthConfig{Strategy: StrategyAccessKey, AccessKeyID: "AKID", SecretAccessKey: "secret", TargetRoleARN: "arn"}, wantErr: true},
		{name: "external id", cfg: AuthConfig{Strategy: StrategyExternalID, ExternalID: "ext", TargetRoleARN: "arn:aws:iam::123456789012:role/cleanup"}},
		{name: "external id missing role", cfg: AuthConfig{Strategy: StrategyExternalID, ExternalID: "ext"}, wantErr: true},
		{name: "profile with keys", cfg: AuthConfig{Strategy: StrategyProfile, Profile: "prod", AccessKeyID: "AKID"}, wantErr: true},
		{name: "profile strategy without profile", cfg: AuthConfig{Strategy: StrategyProfile}, wantErr: true},
		{name: "unknown", cfg: AuthConfig{Strategy: "magic"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAWSConfigAccessKey(t *testing.T) {
	isolateEnv(t)

	cfg, err := AuthConfig{
		Strategy:        StrategyAccessKey,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	}.AWSConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, FallbackRegion, cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}

func TestAWSConfigBootstrapRegion(t *testing.T) {
	isolateEnv(t)

	cfg, err := AuthConfig{
		Strategy:        StrategyAccessKey,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		BootstrapRegion: "eu-west-2",
	}.AWSConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "eu-west-2", cfg.Region)
}

func TestAWSConfigProfile(t *testing.T) {
	dir := isolateEnv(t)

	config := "[profile cleanup]\nregion = ap-southeast-2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), []byte(config), 0o600))
	creds := "[cleanup]\naws_access_key_id = AKIDPROFILE\naws_secret_access_key = profilesecret\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials"), []byte(creds), 0o600))

	cfg, err := AuthConfig{Profile: "cleanup"}.AWSConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ap-southeast-2", cfg.Region)

	got, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDPROFILE", got.AccessKeyID)
}

func TestAWSConfigMissingProfile(t *testing.T) {
	isolateEnv(t)

	_, err := AuthConfig{Profile: "does-not-exist"}.AWSConfig(context.Background())
	assert.Error(t, err)
}

type testSTSClient struct {
	output *sts.GetCallerIdentityOutput
	err    error
}

func (t testSTSClient) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return t.output, t.err
}

type testRegionClient struct {
	output *ec2.DescribeRegionsOutput
	err    error
	input  *ec2.DescribeRegionsInput
}

func (t *testRegionClient) DescribeRegions(_ context.Context, params *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	t.input = params
	return t.output, t.err
}

func TestAccountCallerIdentity(t *testing.T) {
	a := &Account{
		sts: testSTSClient{
			output: &sts.GetCallerIdentityOutput{
				Account: aws.String("123456789012"),
				UserId:  aws.String("AIDAEXAMPLE"),
				Arn:     aws.String("arn:aws:iam::123456789012:user/admin"),
			},
		},
	}

	id, err := a.CallerIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123456789012", id.Account)
	assert.Equal(t, "AIDAEXAMPLE", id.UserID)
	assert.Equal(t, "arn:aws:iam::123456789012:user/admin", id.ARN)

	a.sts = testSTSClient{err: errors.New("expired token")}
	_, err = a.CallerIdentity(context.Background())
	assert.Error(t, err)
}

func TestAccountEnabledRegions(t *testing.T) {
	client := &testRegionClient{
		output: &ec2.DescribeRegionsOutput{
			Regions: []types.Region{
				{RegionName: aws.String("us-east-1")},
				{RegionName: aws.String("eu-west-1")},
				{RegionName: aws.String("ap-south-1")},
			},
		},
	}
	a := &Account{regions: client}

	regions, err := a.EnabledRegions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "eu-west-1", "ap-south-1"}, regions)
	require.NotNil(t, client.input)
	assert.False(t, aws.ToBool(client.input.AllRegions))
}

func TestAccountForRegion(t *testing.T) {
	a := NewAccount(aws.Config{Region: FallbackRegion})

	client, err := a.ForRegion("eu-central-1")
	require.NoError(t, err)

	ec2Client, ok := client.(*ec2.Client)
	require.True(t, ok)
	assert.Equal(t, "eu-central-1", ec2Client.Options().Region)

	_, err = a.ForRegion("")
	assert.Error(t, err)
}
