package vpc

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/cyqual-sec/aws-delete-default-vpc/tracing"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// State is a position in the teardown of one default VPC. States are visited
// strictly in declaration order; any state may jump straight to StateDone.
type State int

const (
	StateDiscovered State = iota
	StateGated
	StateIgwHandled
	StateSubnetsHandled
	StateNetworkDeleted
	StateDhcpChecked
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateGated:
		return "gated"
	case StateIgwHandled:
		return "igw-handled"
	case StateSubnetsHandled:
		return "subnets-handled"
	case StateNetworkDeleted:
		return "network-deleted"
	case StateDhcpChecked:
		return "dhcp-checked"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Step names a single destructive sub-step
type Step string

const (
	StepDetachGateway     Step = "detach-internet-gateway"
	StepDeleteGateway     Step = "delete-internet-gateway"
	StepDeleteSubnet      Step = "delete-subnet"
	StepDeleteNetwork     Step = "delete-vpc"
	StepDeleteDhcpOptions Step = "delete-dhcp-options"
)

// Outcome is the result of one destructive sub-step
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	// OutcomeDeclined means consent was not given
	OutcomeDeclined
	// OutcomeSkipped means the step was deliberately not attempted, e.g. a
	// DHCP option set that is still in use
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeDeclined:
		return "declined"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type StepResult struct {
	Step       Step
	ResourceID string
	Outcome    Outcome
	Err        error
}

// TeardownResult records how far the teardown of one VPC got
type TeardownResult struct {
	// Reached is the last state entered before StateDone
	Reached State

	// Declined is set when deletion of the VPC itself was not approved
	Declined bool

	Steps []StepResult

	// Err is a *RegionError when the teardown was abandoned
	Err error
}

// Find returns the results recorded for a step
func (r TeardownResult) Find(step Step) []StepResult {
	var found []StepResult
	for _, s := range r.Steps {
		if s.Step == step {
			found = append(found, s)
		}
	}
	return found
}

// NetworkDeleted reports whether the VPC itself is gone
func (r TeardownResult) NetworkDeleted() bool {
	for _, s := range r.Find(StepDeleteNetwork) {
		if s.Outcome == OutcomeSucceeded {
			return true
		}
	}
	return false
}

// Orchestrator removes an empty default VPC and its dependents in dependency
// order: internet gateway, subnets, the VPC, then its DHCP option set.
// Nothing is retried or rolled back; a partial teardown is a valid terminal
// state.
type Orchestrator struct {
	region    string
	client    EC2Client
	inventory *Inventory
	gate      Confirmer
}

func NewOrchestrator(inventory *Inventory, client EC2Client, gate Confirmer) *Orchestrator {
	return &Orchestrator{
		region:    inventory.Region(),
		client:    client,
		inventory: inventory,
		gate:      gate,
	}
}

// teardown is the per-VPC state carried between transitions
type teardown struct {
	network DefaultNetwork
	result  TeardownResult
	fields  log.Fields
}

// Teardown drives the state machine for a VPC that discovery reported as
// empty
func (o *Orchestrator) Teardown(ctx context.Context, network DefaultNetwork) TeardownResult {
	ctx, span := tracing.Tracer().Start(ctx, "Teardown")
	defer span.End()
	span.SetAttributes(
		attribute.String("vpc.region", o.region),
		attribute.String("vpc.id", network.ID),
	)

	t := &teardown{
		network: network,
		result:  TeardownResult{Reached: StateDiscovered},
		fields: log.Fields{
			"region": o.region,
			"vpc-id": network.ID,
		},
	}

	state := StateDiscovered
	for state != StateDone {
		next, err := o.transition(ctx, t, state)
		if err != nil {
			log.WithContext(ctx).WithFields(t.fields).WithField("state", state.String()).WithError(err).Error("Abandoning teardown of default VPC")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			t.result.Err = err
			break
		}
		if next != StateDone {
			t.result.Reached = next
		}
		state = next
	}

	span.SetAttributes(attribute.String("vpc.teardown.reached", t.result.Reached.String()))

	return t.result
}

func (o *Orchestrator) transition(ctx context.Context, t *teardown, from State) (State, error) {
	switch from {
	case StateDiscovered:
		return o.gateNetwork(ctx, t)
	case StateGated:
		return o.handleGateway(ctx, t)
	case StateIgwHandled:
		return o.handleSubnets(ctx, t)
	case StateSubnetsHandled:
		return o.deleteNetwork(ctx, t)
	case StateNetworkDeleted:
		return o.checkDhcpOptions(ctx, t)
	case StateDhcpChecked:
		return StateDone, nil
	default:
		return StateDone, fmt.Errorf("invalid teardown state %v", from)
	}
}

func (o *Orchestrator) gateNetwork(ctx context.Context, t *teardown) (State, error) {
	prompt := fmt.Sprintf("Would you like to delete empty default VPC in region %v with ID %v?", o.region, t.network.ID)
	if !o.gate.Confirm(ctx, prompt) {
		log.WithContext(ctx).WithFields(t.fields).Warn("Skipping deletion of default VPC at user request")
		t.result.Declined = true
		t.record(StepDeleteNetwork, t.network.ID, OutcomeDeclined, nil)
		return StateDone, nil
	}

	log.WithContext(ctx).WithFields(t.fields).Info("Deleting default VPC")
	return StateGated, nil
}

func (o *Orchestrator) handleGateway(ctx context.Context, t *teardown) (State, error) {
	gateways, err := o.inventory.InternetGateways(ctx, t.network.ID)
	if err != nil {
		return StateDone, err
	}

	if len(gateways) == 0 {
		return StateDone, o.missing("describe internet gateways", "no internet gateway attached to default VPC")
	}
	if len(gateways) > 1 {
		log.WithContext(ctx).WithFields(t.fields).WithField("igw-ids", gateways).Warn("More than one internet gateway attached, only the first will be removed")
	}

	igwID := gateways[0]
	lf := log.Fields{"igw-id": igwID}

	// the gateway must be detached before AWS will delete it
	_, err = o.client.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
		VpcId:             aws.String(t.network.ID),
	})
	if err = t.settle(ctx, StepDetachGateway, igwID, err); err != nil {
		return StateDone, o.fail("detach internet gateway "+igwID, err)
	}
	log.WithContext(ctx).WithFields(t.fields).WithFields(lf).Info("Detached internet gateway")

	_, err = o.client.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
	})
	if err = t.settle(ctx, StepDeleteGateway, igwID, err); err != nil {
		return StateDone, o.fail("delete internet gateway "+igwID, err)
	}
	log.WithContext(ctx).WithFields(t.fields).WithFields(lf).Info("Deleted internet gateway")

	return StateIgwHandled, nil
}

func (o *Orchestrator) handleSubnets(ctx context.Context, t *teardown) (State, error) {
	subnets, err := o.inventory.Subnets(ctx, t.network.ID)
	if err != nil {
		return StateDone, err
	}

	if len(subnets) == 0 {
		return StateDone, o.missing("describe subnets", "no subnets found in default VPC")
	}

	for _, subnetID := range subnets {
		_, err := o.client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{
			SubnetId: aws.String(subnetID),
		})
		if err = t.settle(ctx, StepDeleteSubnet, subnetID, err); err != nil {
			return StateDone, o.fail("delete subnet "+subnetID, err)
		}
		log.WithContext(ctx).WithFields(t.fields).WithField("subnet-id", subnetID).Info("Deleted subnet")
	}

	return StateSubnetsHandled, nil
}

func (o *Orchestrator) deleteNetwork(ctx context.Context, t *teardown) (State, error) {
	_, err := o.client.DeleteVpc(ctx, &ec2.DeleteVpcInput{
		VpcId: aws.String(t.network.ID),
	})
	if err = t.settle(ctx, StepDeleteNetwork, t.network.ID, err); err != nil {
		return StateDone, o.fail("delete VPC "+t.network.ID, err)
	}
	log.WithContext(ctx).WithFields(t.fields).Info("Deleted default VPC")

	return StateNetworkDeleted, nil
}

func (o *Orchestrator) checkDhcpOptions(ctx context.Context, t *teardown) (State, error) {
	if !t.network.HasDhcpOptions() {
		log.WithContext(ctx).WithFields(t.fields).Debug("Default VPC had no DHCP option set associated")
		return StateDhcpChecked, nil
	}

	dhcpID := t.network.DhcpOptionsID
	lf := log.Fields{"dhcp-options-id": dhcpID}

	users, err := o.inventory.NetworksUsingDhcpOptions(ctx, dhcpID)
	if err != nil {
		return StateDone, err
	}

	// a stale listing can still include the VPC that was just deleted
	users = slices.DeleteFunc(users, func(id string) bool {
		return id == t.network.ID
	})

	if len(users) > 0 {
		log.WithContext(ctx).WithFields(t.fields).WithFields(lf).WithField("vpc-ids", users).Warn("DHCP option set is still used by other VPCs, leaving it in place")
		t.record(StepDeleteDhcpOptions, dhcpID, OutcomeSkipped, nil)
		return StateDhcpChecked, nil
	}

	prompt := fmt.Sprintf("Would you like to delete unused DHCP option set in region %v with ID %v?", o.region, dhcpID)
	if !o.gate.Confirm(ctx, prompt) {
		log.WithContext(ctx).WithFields(t.fields).WithFields(lf).Warn("Skipping deletion of DHCP option set at user request")
		t.record(StepDeleteDhcpOptions, dhcpID, OutcomeDeclined, nil)
		return StateDhcpChecked, nil
	}

	_, err = o.client.DeleteDhcpOptions(ctx, &ec2.DeleteDhcpOptionsInput{
		DhcpOptionsId: aws.String(dhcpID),
	})
	if err = t.settle(ctx, StepDeleteDhcpOptions, dhcpID, err); err != nil {
		return StateDone, o.fail("delete DHCP option set "+dhcpID, err)
	}
	log.WithContext(ctx).WithFields(t.fields).WithFields(lf).Info("Deleted DHCP option set")

	return StateDhcpChecked, nil
}

func (o *Orchestrator) fail(op string, err error) error {
	return &RegionError{Region: o.region, Op: op, Err: err}
}

func (o *Orchestrator) missing(op string, reason string) error {
	return &RegionError{Region: o.region, Op: op, Err: fmt.Errorf("%w: %v", errMissingDependency, reason)}
}

func (t *teardown) record(step Step, id string, outcome Outcome, err error) {
	t.result.Steps = append(t.result.Steps, StepResult{
		Step:       step,
		ResourceID: id,
		Outcome:    outcome,
		Err:        err,
	})
}

// settle records the result of a delete call. A NotFound error means the
// resource is already gone, which is the state we wanted.
func (t *teardown) settle(ctx context.Context, step Step, id string, err error) error {
	switch {
	case err == nil:
		t.record(step, id, OutcomeSucceeded, nil)
		return nil
	case isNotFound(err):
		log.WithContext(ctx).WithFields(t.fields).WithFields(log.Fields{
			"step":        string(step),
			"resource-id": id,
			"error-code":  apiErrorCode(err),
		}).Info("Resource already deleted")
		t.record(step, id, OutcomeSucceeded, nil)
		return nil
	default:
		t.record(step, id, OutcomeFailed, err)
		return err
	}
}
