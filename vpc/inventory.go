package vpc

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	log "github.com/sirupsen/logrus"
)

// DefaultNetwork is a region's provider-created default VPC
type DefaultNetwork struct {
	ID            string
	CidrBlock     string
	DhcpOptionsID string
}

// HasDhcpOptions reports whether the VPC is associated with a real DHCP
// option set. AWS reports "default" when no set is associated.
func (n DefaultNetwork) HasDhcpOptions() bool {
	return n.DhcpOptionsID != "" && n.DhcpOptionsID != "default"
}

// DiscoveryStatus is the outcome of inspecting a region's default VPC
type DiscoveryStatus int

const (
	// DiscoveryNotFound means the region has no default VPC
	DiscoveryNotFound DiscoveryStatus = iota
	// DiscoveryAmbiguous means more than one VPC is flagged as default
	DiscoveryAmbiguous
	// DiscoveryListed means the VPC was reported in list-only mode
	DiscoveryListed
	// DiscoveryNonEmpty means the VPC has network interfaces and must be kept
	DiscoveryNonEmpty
	// DiscoveryEmpty means the VPC is eligible for teardown
	DiscoveryEmpty
)

func (s DiscoveryStatus) String() string {
	switch s {
	case DiscoveryNotFound:
		return "not-found"
	case DiscoveryAmbiguous:
		return "ambiguous"
	case DiscoveryListed:
		return "listed"
	case DiscoveryNonEmpty:
		return "non-empty"
	case DiscoveryEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Discovery is what the inventory learned about a region
type Discovery struct {
	Status     DiscoveryStatus
	Network    DefaultNetwork
	Interfaces int

	// Candidates holds every VPC ID flagged as default when Status is
	// DiscoveryAmbiguous
	Candidates []string
}

// Inventory answers questions about the VPC resources of a single region.
// Every failure is returned as a *RegionError.
type Inventory struct {
	region   string
	client   EC2Client
	listOnly bool
}

func NewInventory(region string, client EC2Client, listOnly bool) *Inventory {
	return &Inventory{
		region:   region,
		client:   client,
		listOnly: listOnly,
	}
}

func (i *Inventory) Region() string {
	return i.region
}

func (i *Inventory) fail(op string, err error) error {
	return &RegionError{Region: i.region, Op: op, Err: err}
}

// Discover finds the region's default VPC and decides whether it may be torn
// down. The interface count is observed once and not re-checked later.
func (i *Inventory) Discover(ctx context.Context) (Discovery, error) {
	lf := log.Fields{"region": i.region}

	networks, err := i.DefaultNetworks(ctx)
	if err != nil {
		return Discovery{}, err
	}

	switch len(networks) {
	case 0:
		log.WithContext(ctx).WithFields(lf).Info("No default VPC found")
		return Discovery{Status: DiscoveryNotFound}, nil
	case 1:
	default:
		ids := make([]string, 0, len(networks))
		for _, n := range networks {
			ids = append(ids, n.ID)
		}
		log.WithContext(ctx).WithFields(lf).WithField("vpc-ids", ids).Error("More than one default VPC found, refusing to choose one")
		return Discovery{Status: DiscoveryAmbiguous, Candidates: ids}, nil
	}

	network := networks[0]
	lf["vpc-id"] = network.ID
	log.WithContext(ctx).WithFields(lf).WithField("cidr-block", network.CidrBlock).Debug("Found default VPC")

	count, err := i.InterfaceCount(ctx, network.ID)
	if err != nil {
		return Discovery{}, err
	}
	lf["interfaces"] = count

	d := Discovery{Network: network, Interfaces: count}

	switch {
	case i.listOnly:
		log.WithContext(ctx).WithFields(lf).Infof("Found default VPC %v with %d network interfaces", network.ID, count)
		d.Status = DiscoveryListed
	case count > 0:
		log.WithContext(ctx).WithFields(lf).Warnf("Default VPC %v is not empty, it has %d network interfaces", network.ID, count)
		d.Status = DiscoveryNonEmpty
	default:
		log.WithContext(ctx).WithFields(lf).Debug("No network interfaces found in default VPC")
		d.Status = DiscoveryEmpty
	}

	return d, nil
}

// DefaultNetworks lists every VPC in the region flagged as default
func (i *Inventory) DefaultNetworks(ctx context.Context) ([]DefaultNetwork, error) {
	paginator := ec2.NewDescribeVpcsPaginator(i.client, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("is-default"),
				Values: []string{"true"},
			},
		},
	})

	var networks []DefaultNetwork
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, i.fail("describe default VPCs", err)
		}
		for _, v := range page.Vpcs {
			networks = append(networks, DefaultNetwork{
				ID:            aws.ToString(v.VpcId),
				CidrBlock:     aws.ToString(v.CidrBlock),
				DhcpOptionsID: aws.ToString(v.DhcpOptionsId),
			})
		}
	}

	return networks, nil
}

// InterfaceCount counts the network interfaces in a VPC
func (i *Inventory) InterfaceCount(ctx context.Context, vpcID string) (int, error) {
	paginator := ec2.NewDescribeNetworkInterfacesPaginator(i.client, &ec2.DescribeNetworkInterfacesInput{
		Filters: singleFilter("vpc-id", vpcID),
	})

	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, i.fail("describe network interfaces", err)
		}
		count += len(page.NetworkInterfaces)
	}

	return count, nil
}

// InternetGateways lists the IDs of internet gateways attached to a VPC
func (i *Inventory) InternetGateways(ctx context.Context, vpcID string) ([]string, error) {
	paginator := ec2.NewDescribeInternetGatewaysPaginator(i.client, &ec2.DescribeInternetGatewaysInput{
		Filters: singleFilter("attachment.vpc-id", vpcID),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, i.fail("describe internet gateways", err)
		}
		for _, gw := range page.InternetGateways {
			ids = append(ids, aws.ToString(gw.InternetGatewayId))
		}
	}

	return ids, nil
}

// Subnets lists the IDs of the subnets belonging to a VPC
func (i *Inventory) Subnets(ctx context.Context, vpcID string) ([]string, error) {
	paginator := ec2.NewDescribeSubnetsPaginator(i.client, &ec2.DescribeSubnetsInput{
		Filters: singleFilter("vpc-id", vpcID),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, i.fail("describe subnets", err)
		}
		for _, s := range page.Subnets {
			ids = append(ids, aws.ToString(s.SubnetId))
		}
	}

	return ids, nil
}

// NetworksUsingDhcpOptions lists the IDs of VPCs that still reference a DHCP
// option set
func (i *Inventory) NetworksUsingDhcpOptions(ctx context.Context, dhcpOptionsID string) ([]string, error) {
	paginator := ec2.NewDescribeVpcsPaginator(i.client, &ec2.DescribeVpcsInput{
		Filters: singleFilter("dhcp-options-id", dhcpOptionsID),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, i.fail("describe VPCs by DHCP option set", err)
		}
		for _, v := range page.Vpcs {
			ids = append(ids, aws.ToString(v.VpcId))
		}
	}

	return ids, nil
}

func singleFilter(name, value string) []types.Filter {
	return []types.Filter{
		{
			Name:   aws.String(name),
			Values: []string{value},
		},
	}
}
