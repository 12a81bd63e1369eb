package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vm-health-agent/internal/model"
)

const (
	OpFetchSamples  = "fetch samples"
	OpListInstances = "list instances"
)

// FetchError reports an upstream query that could not be completed.
type FetchError struct {
	ProjectID  string
	MetricType model.MetricType
	Op         string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("project %s: %s", e.ProjectID, e.Detail())
}

// Detail is the error text without the project prefix.
func (e *FetchError) Detail() string {
	if e.MetricType != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.MetricType, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func NewSamplesError(projectID string, metric model.MetricType, err error) *FetchError {
	return &FetchError{ProjectID: projectID, MetricType: metric, Op: OpFetchSamples, Err: err}
}

func NewInventoryError(projectID string, err error) *FetchError {
	return &FetchError{ProjectID: projectID, Op: OpListInstances, Err: err}
}

// IsFetchError reports whether err carries a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Transient reports whether a failed upstream call is worth retrying.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() > 0 {
		switch apiErr.HTTPCode() {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Internal, codes.Aborted:
		return true
	default:
		return false
	}
}
