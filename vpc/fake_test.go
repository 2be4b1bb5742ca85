package vpc

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// mockAPIError lets tests return errors shaped like the ones the SDK returns
type mockAPIError struct {
	code    string
	message string
}

func (m mockAPIError) Error() string {
	return m.code + ": " + m.message
}

func (m mockAPIError) ErrorCode() string {
	return m.code
}

func (m mockAPIError) ErrorMessage() string {
	return m.message
}

func (m mockAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultClient
}

var _ smithy.APIError = mockAPIError{}

// testEC2 is an in-memory region. Mutating calls change its state so that
// later describes see the result, and every call is appended to calls.
type testEC2 struct {
	vpcs       []types.Vpc
	interfaces map[string]int
	gateways   map[string][]string
	subnets    map[string][]string

	// errs is keyed by method name, or by "<method> <resource-id>" to fail a
	// single resource
	errs map[string]error

	// pageSize splits describe results into pages when non-zero
	pageSize int

	// staleReads keeps deleted VPCs visible to DescribeVpcs, the way an
	// eventually consistent listing can
	staleReads bool

	calls []string
}

const (
	testVpcID  = "vpc-0default"
	testDhcpID = "dopt-0default"
	testIgwID  = "igw-0default"
)

// newTestEC2 returns a region holding an empty default VPC with one internet
// gateway and three subnets
func newTestEC2() *testEC2 {
	return &testEC2{
		vpcs: []types.Vpc{
			{
				VpcId:         aws.String(testVpcID),
				CidrBlock:     aws.String("172.31.0.0/16"),
				DhcpOptionsId: aws.String(testDhcpID),
				IsDefault:     aws.Bool(true),
			},
		},
		interfaces: map[string]int{},
		gateways: map[string][]string{
			testVpcID: {testIgwID},
		},
		subnets: map[string][]string{
			testVpcID: {"subnet-0a", "subnet-0b", "subnet-0c"},
		},
		errs: map[string]error{},
	}
}

func (c *testEC2) record(method string, id string) error {
	if id == "" {
		c.calls = append(c.calls, method)
	} else {
		c.calls = append(c.calls, method+" "+id)
	}

	if err, ok := c.errs[method+" "+id]; ok {
		return err
	}
	if err, ok := c.errs[method]; ok {
		return err
	}
	return nil
}

// mutations returns the calls that change state, in order
func (c *testEC2) mutations() []string {
	var out []string
	for _, call := range c.calls {
		if !strings.HasPrefix(call, "Describe") {
			out = append(out, call)
		}
	}
	return out
}

func (c *testEC2) indexOf(call string) int {
	return slices.Index(c.calls, call)
}

func filterValue(filters []types.Filter, name string) (string, bool) {
	for _, f := range filters {
		if aws.ToString(f.Name) == name && len(f.Values) > 0 {
			return f.Values[0], true
		}
	}
	return "", false
}

// page returns the slice of items selected by token along with the token for
// the next page
func page[T any](c *testEC2, items []T, token *string) ([]T, *string) {
	if c.pageSize == 0 {
		return items, nil
	}

	start := 0
	if token != nil {
		start, _ = strconv.Atoi(*token)
	}
	end := min(start+c.pageSize, len(items))
	if end >= len(items) {
		return items[start:], nil
	}
	return items[start:end], aws.String(strconv.Itoa(end))
}

func (c *testEC2) DescribeVpcs(_ context.Context, params *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	if err := c.record("DescribeVpcs", ""); err != nil {
		return nil, err
	}

	var matched []types.Vpc
	for _, v := range c.vpcs {
		if want, ok := filterValue(params.Filters, "is-default"); ok && strconv.FormatBool(aws.ToBool(v.IsDefault)) != want {
			continue
		}
		if want, ok := filterValue(params.Filters, "dhcp-options-id"); ok && aws.ToString(v.DhcpOptionsId) != want {
			continue
		}
		matched = append(matched, v)
	}

	items, next := page(c, matched, params.NextToken)
	return &ec2.DescribeVpcsOutput{Vpcs: items, NextToken: next}, nil
}

func (c *testEC2) DescribeNetworkInterfaces(_ context.Context, params *ec2.DescribeNetworkInterfacesInput, _ ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
	if err := c.record("DescribeNetworkInterfaces", ""); err != nil {
		return nil, err
	}

	vpcID, _ := filterValue(params.Filters, "vpc-id")
	enis := make([]types.NetworkInterface, c.interfaces[vpcID])
	for i := range enis {
		enis[i].NetworkInterfaceId = aws.String("eni-" + strconv.Itoa(i))
		enis[i].VpcId = aws.String(vpcID)
	}

	items, next := page(c, enis, params.NextToken)
	return &ec2.DescribeNetworkInterfacesOutput{NetworkInterfaces: items, NextToken: next}, nil
}

func (c *testEC2) DescribeInternetGateways(_ context.Context, params *ec2.DescribeInternetGatewaysInput, _ ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error) {
	if err := c.record("DescribeInternetGateways", ""); err != nil {
		return nil, err
	}

	vpcID, _ := filterValue(params.Filters, "attachment.vpc-id")
	var gateways []types.InternetGateway
	for _, id := range c.gateways[vpcID] {
		gateways = append(gateways, types.InternetGateway{
			InternetGatewayId: aws.String(id),
			Attachments: []types.InternetGatewayAttachment{
				{VpcId: aws.String(vpcID), State: types.AttachmentStatusAttached},
			},
		})
	}

	items, next := page(c, gateways, params.NextToken)
	return &ec2.DescribeInternetGatewaysOutput{InternetGateways: items, NextToken: next}, nil
}

func (c *testEC2) DetachInternetGateway(_ context.Context, params *ec2.DetachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	id := aws.ToString(params.InternetGatewayId)
	if err := c.record("DetachInternetGateway", id); err != nil {
		return nil, err
	}

	vpcID := aws.ToString(params.VpcId)
	c.gateways[vpcID] = slices.DeleteFunc(c.gateways[vpcID], func(g string) bool { return g == id })
	return &ec2.DetachInternetGatewayOutput{}, nil
}

func (c *testEC2) DeleteInternetGateway(_ context.Context, params *ec2.DeleteInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	if err := c.record("DeleteInternetGateway", aws.ToString(params.InternetGatewayId)); err != nil {
		return nil, err
	}
	return &ec2.DeleteInternetGatewayOutput{}, nil
}

func (c *testEC2) DescribeSubnets(_ context.Context, params *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	if err := c.record("DescribeSubnets", ""); err != nil {
		return nil, err
	}

	vpcID, _ := filterValue(params.Filters, "vpc-id")
	var subnets []types.Subnet
	for _, id := range c.subnets[vpcID] {
		subnets = append(subnets, types.Subnet{
			SubnetId: aws.String(id),
			VpcId:    aws.String(vpcID),
		})
	}

	items, next := page(c, subnets, params.NextToken)
	return &ec2.DescribeSubnetsOutput{Subnets: items, NextToken: next}, nil
}

func (c *testEC2) DeleteSubnet(_ context.Context, params *ec2.DeleteSubnetInput, _ ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	id := aws.ToString(params.SubnetId)
	if err := c.record("DeleteSubnet", id); err != nil {
		return nil, err
	}

	for vpcID, ids := range c.subnets {
		c.subnets[vpcID] = slices.DeleteFunc(ids, func(s string) bool { return s == id })
	}
	return &ec2.DeleteSubnetOutput{}, nil
}

func (c *testEC2) DeleteVpc(_ context.Context, params *ec2.DeleteVpcInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	id := aws.ToString(params.VpcId)
	if err := c.record("DeleteVpc", id); err != nil {
		return nil, err
	}

	if !c.staleReads {
		c.vpcs = slices.DeleteFunc(c.vpcs, func(v types.Vpc) bool { return aws.ToString(v.VpcId) == id })
	}
	return &ec2.DeleteVpcOutput{}, nil
}

func (c *testEC2) DeleteDhcpOptions(_ context.Context, params *ec2.DeleteDhcpOptionsInput, _ ...func(*ec2.Options)) (*ec2.DeleteDhcpOptionsOutput, error) {
	if err := c.record("DeleteDhcpOptions", aws.ToString(params.DhcpOptionsId)); err != nil {
		return nil, err
	}
	return &ec2.DeleteDhcpOptionsOutput{}, nil
}

var _ EC2Client = (*testEC2)(nil)

// testAccount is an Account whose regions are testEC2 instances
type testAccount struct {
	identity    Identity
	identityErr error
	enabled     []string
	enabledErr  error
	clients     map[string]*testEC2

	identityCalls int
	regionCalls   int
	clientCalls   []string
}

func newTestAccount(clients map[string]*testEC2, enabled ...string) *testAccount {
	return &testAccount{
		identity: Identity{
			Account: "123456789012",
			UserID:  "AIDAEXAMPLE",
			ARN:     "arn:aws:iam::123456789012:user/cleanup",
		},
		enabled: enabled,
		clients: clients,
	}
}

func (a *testAccount) CallerIdentity(context.Context) (Identity, error) {
	a.identityCalls++
	return a.identity, a.identityErr
}

func (a *testAccount) EnabledRegions(context.Context) ([]string, error) {
	a.regionCalls++
	return a.enabled, a.enabledErr
}

func (a *testAccount) ForRegion(region string) (EC2Client, error) {
	a.clientCalls = append(a.clientCalls, region)
	client, ok := a.clients[region]
	if !ok {
		return nil, errors.New("no client for region " + region)
	}
	return client, nil
}

// remoteCalls is the number of calls the account has seen
func (a *testAccount) remoteCalls() int {
	return a.identityCalls + a.regionCalls + len(a.clientCalls)
}

// scriptedConfirmer answers prompts from a fixed list and records what it was
// asked. It declines once the answers run out.
type scriptedConfirmer struct {
	answers []bool
	prompts []string
}

func (s *scriptedConfirmer) Confirm(_ context.Context, prompt string) bool {
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return false
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer
}

// alwaysConfirm approves every prompt
func alwaysConfirm() *scriptedConfirmer {
	return &scriptedConfirmer{answers: slices.Repeat([]bool{true}, 100)}
}
