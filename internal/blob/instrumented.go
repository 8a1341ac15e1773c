package blob

import (
	"context"
	"errors"

	"github.com/courtdata/fastbreak/pkg/metrics"
)

// InstrumentedStore counts every operation against the metrics registry.
// Wrap the backend once at wiring time so both backends report the same
// way.
type InstrumentedStore struct {
	next Store
}

// NewInstrumented wraps next with operation counters.
func NewInstrumented(next Store) *InstrumentedStore {
	return &InstrumentedStore{next: next}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	default:
		return "error"
	}
}

func (s *InstrumentedStore) Put(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	info, err := s.next.Put(ctx, key, body)
	metrics.RecordStoreOperation("put", outcomeOf(err))
	return info, err
}

func (s *InstrumentedStore) PutIfAbsent(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	info, err := s.next.PutIfAbsent(ctx, key, body)
	metrics.RecordStoreOperation("put_if_absent", outcomeOf(err))
	return info, err
}

func (s *InstrumentedStore) PutIfMatch(ctx context.Context, key string, body []byte, etag string) (ObjectInfo, error) {
	info, err := s.next.PutIfMatch(ctx, key, body, etag)
	metrics.RecordStoreOperation("put_if_match", outcomeOf(err))
	return info, err
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (Object, error) {
	obj, err := s.next.Get(ctx, key)
	metrics.RecordStoreOperation("get", outcomeOf(err))
	return obj, err
}

func (s *InstrumentedStore) Head(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.next.Head(ctx, key)
	metrics.RecordStoreOperation("head", outcomeOf(err))
	return info, err
}

func (s *InstrumentedStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	infos, err := s.next.List(ctx, prefix)
	metrics.RecordStoreOperation("list", outcomeOf(err))
	return infos, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	err := s.next.Delete(ctx, key)
	metrics.RecordStoreOperation("delete", outcomeOf(err))
	return err
}
