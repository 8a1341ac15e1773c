package blob

import (
	"context"
	"time"

	"github.com/courtdata/fastbreak/internal/events"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// NotifyingStore decorates a Store to publish an object-created event
// after every successful write, standing in for bucket notifications.
// Reads and deletes pass through untouched.
type NotifyingStore struct {
	next   Store
	pub    events.Publisher
	bucket string
	log    *logger.Logger
}

// NewNotifying wraps next so writes announce themselves on pub.
func NewNotifying(next Store, pub events.Publisher, bucket string, log *logger.Logger) *NotifyingStore {
	return &NotifyingStore{
		next:   next,
		pub:    pub,
		bucket: bucket,
		log:    log,
	}
}

func (s *NotifyingStore) Put(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	info, err := s.next.Put(ctx, key, body)
	if err != nil {
		return info, err
	}
	s.notify(ctx, info)
	return info, nil
}

func (s *NotifyingStore) PutIfAbsent(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	info, err := s.next.PutIfAbsent(ctx, key, body)
	if err != nil {
		return info, err
	}
	s.notify(ctx, info)
	return info, nil
}

func (s *NotifyingStore) PutIfMatch(ctx context.Context, key string, body []byte, etag string) (ObjectInfo, error) {
	info, err := s.next.PutIfMatch(ctx, key, body, etag)
	if err != nil {
		return info, err
	}
	s.notify(ctx, info)
	return info, nil
}

func (s *NotifyingStore) Get(ctx context.Context, key string) (Object, error) {
	return s.next.Get(ctx, key)
}

func (s *NotifyingStore) Head(ctx context.Context, key string) (ObjectInfo, error) {
	return s.next.Head(ctx, key)
}

func (s *NotifyingStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	return s.next.List(ctx, prefix)
}

func (s *NotifyingStore) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}

// notify publishes the event best-effort. The write already landed, and
// the conformance sweep re-derives anything a dropped notification
// would have triggered.
func (s *NotifyingStore) notify(ctx context.Context, info ObjectInfo) {
	evt := events.ObjectEvent{
		SchemaVersion: events.EventSchemaVersion,
		Bucket:        s.bucket,
		Key:           info.Key,
		ETag:          info.ETag,
		Size:          info.Size,
		EventTime:     time.Now().UTC(),
	}
	if err := s.pub.Publish(ctx, evt); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"key":    info.Key,
			"bucket": s.bucket,
		}).Warn("object event publish failed")
	}
}
