package vpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// ConfigError is returned when the run configuration is contradictory. It is
// always reported before any remote call is made.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Reason
}

// AuthError is returned when a session cannot be established, the caller
// identity cannot be resolved or the account's regions cannot be listed.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when an include or exclude list names regions
// that are not enabled in the account.
type ValidationError struct {
	Unknown []string
	Enabled []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("unknown region(s): %v (enabled regions: %v)", strings.Join(e.Unknown, ", "), strings.Join(e.Enabled, ", "))
}

// RegionError wraps any failure while enumerating or mutating resources in a
// single region. It never escapes the region boundary.
type RegionError struct {
	Region string
	Op     string
	Err    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("region %v: %v: %v", e.Region, e.Op, e.Err)
}

func (e *RegionError) Unwrap() error {
	return e.Err
}

// errMissingDependency marks a default VPC whose gateway or subnets could not
// be found, which is treated as an unsupported topology.
var errMissingDependency = errors.New("missing dependency")

// apiErrorCode returns the AWS error code for err, or an empty string if err
// did not come from the API
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isNotFound reports whether a delete failed because the resource is already
// gone, e.g. InvalidSubnetID.NotFound or InvalidVpcID.NotFound
func isNotFound(err error) bool {
	return strings.HasSuffix(apiErrorCode(err), ".NotFound")
}
