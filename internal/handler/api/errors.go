package api

import (
	"errors"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/usecase"
	xhttp "LatentTrader/pkg/http"
)

// toAppError maps engine errors onto HTTP statuses. Unknown errors fall
// through unchanged and AppErrorResponse renders them as 500.
func toAppError(err error) error {
	var (
		empty *errs.EmptyClusterError
		nonc  *errs.NonConvergenceError
	)
	switch {
	case errors.As(err, &empty):
		return xhttp.UnprocessableError("a prototype has no support").
			WithParam("cluster", empty.Cluster).WithError(err)
	case errors.As(err, &nonc):
		return xhttp.UnprocessableError("clustering did not converge").
			WithParam("iterations", nonc.Iterations).WithError(err)
	case errors.Is(err, errs.ErrShape),
		errors.Is(err, errs.ErrInvalidArgument),
		errors.Is(err, errs.ErrDegenerateVector):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, errs.ErrModelNotReady):
		return xhttp.NotFoundError("no trained model available").WithError(err)
	case errors.Is(err, usecase.ErrTrainingInProgress):
		return xhttp.ConflictError("training already in progress").WithError(err)
	default:
		return err
	}
}
