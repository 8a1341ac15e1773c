package nbastats

import (
	"errors"
	"fmt"

	"github.com/courtdata/fastbreak/internal/contracts"
)

// Kind classifies a fetch failure so callers can choose between retry,
// skip, and quarantine. The client itself never retries.
type Kind int

const (
	// KindNotFound means the resource does not exist upstream.
	KindNotFound Kind = iota
	// KindRateLimited means the feed asked us to back off.
	KindRateLimited
	// KindTransient covers upstream and network failures likely to heal,
	// including an open circuit breaker.
	KindTransient
	// KindPermanentlyInvalid marks responses that will never parse no
	// matter how often they are refetched.
	KindPermanentlyInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermanentlyInvalid:
		return "permanently_invalid"
	default:
		return "unknown"
	}
}

// FetchError is the typed failure for every feed operation.
type FetchError struct {
	Kind     Kind
	Resource contracts.RawResource
	SourceID string
	Status   int
	// Body holds the offending bytes when the failure is
	// KindPermanentlyInvalid and a body was read, so callers can
	// quarantine the evidence.
	Body []byte
	Err  error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s %s: %s", e.Resource, e.SourceID, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a missing-resource fetch failure.
func IsNotFound(err error) bool {
	return hasKind(err, KindNotFound)
}

// IsRateLimited reports whether err is a back-off request from the feed.
func IsRateLimited(err error) bool {
	return hasKind(err, KindRateLimited)
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return hasKind(err, KindTransient)
}

// IsPermanentlyInvalid reports whether err marks a response that can
// only be quarantined.
func IsPermanentlyInvalid(err error) bool {
	return hasKind(err, KindPermanentlyInvalid)
}

func hasKind(err error, k Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == k
}
