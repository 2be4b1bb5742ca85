package vpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyqual-sec/aws-delete-default-vpc/tracing"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RegionStatus summarises what happened to one region
type RegionStatus int

const (
	RegionNoDefault RegionStatus = iota
	RegionAmbiguous
	RegionListed
	RegionInUse
	RegionDeclined
	RegionTornDown
	RegionAborted
	RegionFailed
)

func (s RegionStatus) String() string {
	switch s {
	case RegionNoDefault:
		return "no default VPC"
	case RegionAmbiguous:
		return "multiple default VPCs"
	case RegionListed:
		return "listed"
	case RegionInUse:
		return "in use"
	case RegionDeclined:
		return "declined"
	case RegionTornDown:
		return "deleted"
	case RegionAborted:
		return "aborted"
	case RegionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type RegionResult struct {
	Region     string
	Status     RegionStatus
	NetworkID  string
	Interfaces int
	Teardown   *TeardownResult
	Err        error
}

// Report is the result of a whole run
type Report struct {
	RunID    uuid.UUID
	Identity Identity

	// IdentityDeclined is set when the operator refused to continue as the
	// authenticated identity; no region was looked at
	IdentityDeclined bool

	// Interrupted is set when the context was cancelled part way through
	Interrupted bool

	Regions []RegionResult
}

// Count returns the number of regions that ended with the given status
func (r Report) Count(status RegionStatus) int {
	n := 0
	for _, res := range r.Regions {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Runner processes the chosen regions of one account, one at a time. Failures
// inside a region are recorded in its RegionResult and never stop the run;
// only configuration, authentication and region validation errors are
// returned from Run.
type Runner struct {
	config  Config
	account Account
	gate    Confirmer
}

func NewRunner(config Config, account Account, gate Confirmer) *Runner {
	return &Runner{
		config:  config,
		account: account,
		gate:    gate,
	}
}

func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.New()}

	// contradictory settings are rejected before anything remote happens
	if err := r.config.Validate(); err != nil {
		return report, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("vpc.run.id", report.RunID.String()),
		attribute.String("vpc.run.filter", r.config.Filter.Mode().String()),
		attribute.Bool("vpc.run.listOnly", r.config.ListOnly),
		attribute.Bool("vpc.run.autoAccept", r.config.AutoAccept),
	)

	lf := log.Fields{"run-id": report.RunID.String()}

	if r.config.ListOnly {
		log.WithContext(ctx).WithFields(lf).Info("List only mode - enumerate default VPCs and number of network interfaces, then exit")
	}

	identity, err := r.account.CallerIdentity(ctx)
	if err != nil {
		err = &AuthError{Op: "unable to enumerate session", Err: err}
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	report.Identity = identity
	lf["account"] = identity.Account
	log.WithContext(ctx).WithFields(lf).WithField("arn", identity.ARN).Debug("Successfully enumerated session information")

	if !r.gate.Confirm(ctx, fmt.Sprintf("Enumerate default VPCs as %v for account %v?", identity.UserID, identity.Account)) {
		if ctx.Err() != nil {
			log.WithContext(ctx).WithFields(lf).WithError(ctx.Err()).Warn("Run interrupted before any region was processed")
			report.Interrupted = true
			return report, nil
		}
		log.WithContext(ctx).WithFields(lf).Warn("You must type 'yes' to proceed. Exiting...")
		report.IdentityDeclined = true
		return report, nil
	}

	enabled, err := r.account.EnabledRegions(ctx)
	if err != nil {
		err = &AuthError{Op: "unable to describe regions in the account", Err: err}
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	regions, err := SelectRegions(r.config.Filter, enabled)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	log.WithContext(ctx).WithFields(lf).WithField("regions", regions).Info("Enumerating default VPCs")

	for _, region := range regions {
		if ctx.Err() != nil {
			log.WithContext(ctx).WithFields(lf).WithError(ctx.Err()).Warn("Run interrupted, remaining regions were not processed")
			report.Interrupted = true
			break
		}
		report.Regions = append(report.Regions, r.processRegion(ctx, region))
	}

	span.SetAttributes(
		attribute.Int("vpc.run.regions", len(report.Regions)),
		attribute.Int("vpc.run.deleted", report.Count(RegionTornDown)),
		attribute.Int("vpc.run.failed", report.Count(RegionFailed)+report.Count(RegionAborted)),
	)

	return report, nil
}

// processRegion is the region boundary: nothing that goes wrong in here
// escapes it
func (r *Runner) processRegion(ctx context.Context, region string) RegionResult {
	ctx, span := tracing.Tracer().Start(ctx, "Region")
	defer span.End()
	span.SetAttributes(attribute.String("vpc.region", region))

	lf := log.Fields{"region": region}
	log.WithContext(ctx).WithFields(lf).Debug("Working with region")

	result := RegionResult{Region: region}

	client, err := r.account.ForRegion(region)
	if err != nil {
		result.Status = RegionFailed
		result.Err = &RegionError{Region: region, Op: "create EC2 client", Err: err}
		log.WithContext(ctx).WithFields(lf).WithError(err).Error("Unable to create EC2 client for region")
		return result
	}

	inventory := NewInventory(region, client, r.config.ListOnly)

	discovery, err := inventory.Discover(ctx)
	if err != nil {
		result.Status = RegionFailed
		result.Err = err
		log.WithContext(ctx).WithFields(lf).WithError(err).Error("Unable to enumerate default VPC")
		log.WithContext(ctx).WithFields(lf).Debug("Note that errors enumerating resources could be due to IAM permissions or SCP restrictions")
		span.SetStatus(codes.Error, err.Error())
		return result
	}

	result.NetworkID = discovery.Network.ID
	result.Interfaces = discovery.Interfaces
	span.SetAttributes(
		attribute.String("vpc.discovery", discovery.Status.String()),
		attribute.Int("vpc.interfaces", discovery.Interfaces),
	)

	switch discovery.Status {
	case DiscoveryNotFound:
		result.Status = RegionNoDefault
		return result
	case DiscoveryAmbiguous:
		result.Status = RegionAmbiguous
		return result
	case DiscoveryListed:
		result.Status = RegionListed
		return result
	case DiscoveryNonEmpty:
		result.Status = RegionInUse
		return result
	case DiscoveryEmpty:
	}

	teardown := NewOrchestrator(inventory, client, r.gate).Teardown(ctx, discovery.Network)
	result.Teardown = &teardown
	result.Err = teardown.Err

	switch {
	case teardown.Declined:
		result.Status = RegionDeclined
	case teardown.Err != nil && errors.Is(teardown.Err, errMissingDependency):
		result.Status = RegionAborted
	case teardown.Err != nil:
		result.Status = RegionFailed
	default:
		result.Status = RegionTornDown
	}

	if teardown.Err != nil {
		span.SetStatus(codes.Error, teardown.Err.Error())
	}

	return result
}
