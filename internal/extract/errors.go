package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/plansets/internal/common"
)

// TransientError is a failure worth retrying: timeouts, rate limits, 5xx.
type TransientError struct {
	Step string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Step, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{common.ErrTransientService, e.Err}
}

// PermanentError fails the document without further attempts.
type PermanentError struct {
	Step   string
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent: %s: %s: %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("permanent: %s: %s", e.Step, e.Reason)
}

func (e *PermanentError) Unwrap() []error {
	if e.Err == nil {
		return []error{common.ErrPermanentService}
	}
	return []error{common.ErrPermanentService, e.Err}
}

// OutcomeReason is the text recorded in the checkpoint for a failed document.
func (e *PermanentError) OutcomeReason() string {
	return "permanent: " + e.Reason
}

// StatusError carries the HTTP status of a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx status: %d", e.StatusCode)
}

// Classify maps err into TransientError or PermanentError. Context cancellation
// is returned unchanged so callers can stop without recording an outcome.
func Classify(step string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	var pe *PermanentError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Step: step, Err: err}
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode == http.StatusRequestTimeout,
			se.StatusCode >= 500:
			return &TransientError{Step: step, Err: err}
		default:
			return &PermanentError{Step: step, Reason: http.StatusText(se.StatusCode), Err: err}
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
			return &TransientError{Step: step, Err: err}
		default:
			return &PermanentError{Step: step, Reason: st.Code().String(), Err: err}
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransientError{Step: step, Err: err}
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return &TransientError{Step: step, Err: err}
	}

	return &PermanentError{Step: step, Reason: "unexpected error", Err: err}
}

// IsTransient reports whether err was classified as transient.
func IsTransient(err error) bool {
	return errors.Is(err, common.ErrTransientService)
}
