package database

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
	"github.com/aetherlms/lms-server/internal/app/domain/enrollment"
	"github.com/aetherlms/lms-server/internal/app/domain/user"
	"github.com/aetherlms/lms-server/internal/app/storage"
	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/metrics"
)

// Reconnector repairs a broken connection.
type Reconnector interface {
	Reconnect(ctx context.Context) bool
}

// ResilientStore decorates a storage.Store. An operation that fails with a
// connection error triggers one reconnect and one retry; any other error is
// returned as is. When the reconnect fails the original error is returned.
type ResilientStore struct {
	next storage.Store
	sup  Reconnector
	log  *logrus.Entry
}

var _ storage.Store = (*ResilientStore)(nil)

// NewResilientStore wraps next, repairing connections through sup.
func NewResilientStore(next storage.Store, sup Reconnector, log *logging.Logger) *ResilientStore {
	if log == nil {
		log = logging.NewDefault("database")
	}
	return &ResilientStore{next: next, sup: sup, log: log.Component("resilient-store")}
}

func call[T any](ctx context.Context, r *ResilientStore, op string, fn func(storage.Store) (T, error)) (T, error) {
	out, err := fn(r.next)
	if err == nil || !IsConnectionError(err) || ctx.Err() != nil {
		return out, err
	}

	metrics.RecordOperationRetry(op)
	r.log.WithError(err).WithField("operation", op).Warn("connection error, reconnecting before retry")

	if !r.sup.Reconnect(ctx) {
		r.log.WithField("operation", op).Error("reconnect failed, giving up")
		return out, err
	}
	return fn(r.next)
}

func (r *ResilientStore) Ping(ctx context.Context) error {
	_, err := call(ctx, r, "ping", func(s storage.Store) (struct{}, error) {
		return struct{}{}, s.Ping(ctx)
	})
	return err
}

func (r *ResilientStore) ListCourses(ctx context.Context, opts course.ListOptions) ([]course.Course, error) {
	return call(ctx, r, "list_courses", func(s storage.Store) ([]course.Course, error) {
		return s.ListCourses(ctx, opts)
	})
}

func (r *ResilientStore) CountCourses(ctx context.Context, publishedOnly bool) (int, error) {
	return call(ctx, r, "count_courses", func(s storage.Store) (int, error) {
		return s.CountCourses(ctx, publishedOnly)
	})
}

func (r *ResilientStore) GetCourse(ctx context.Context, id string) (course.Course, error) {
	return call(ctx, r, "get_course", func(s storage.Store) (course.Course, error) {
		return s.GetCourse(ctx, id)
	})
}

func (r *ResilientStore) ListSections(ctx context.Context, courseID string) ([]course.Section, error) {
	return call(ctx, r, "list_sections", func(s storage.Store) ([]course.Section, error) {
		return s.ListSections(ctx, courseID)
	})
}

func (r *ResilientStore) ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	return call(ctx, r, "list_lessons", func(s storage.Store) ([]course.Lesson, error) {
		return s.ListLessons(ctx, courseID)
	})
}

func (r *ResilientStore) GetUserByExternalID(ctx context.Context, externalID string) (user.User, error) {
	return call(ctx, r, "get_user", func(s storage.Store) (user.User, error) {
		return s.GetUserByExternalID(ctx, externalID)
	})
}

func (r *ResilientStore) ListWorkspaces(ctx context.Context, userID string) ([]user.Workspace, error) {
	return call(ctx, r, "list_workspaces", func(s storage.Store) ([]user.Workspace, error) {
		return s.ListWorkspaces(ctx, userID)
	})
}

func (r *ResilientStore) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	return call(ctx, r, "create_enrollment", func(s storage.Store) (enrollment.Enrollment, error) {
		return s.CreateEnrollment(ctx, e)
	})
}

func (r *ResilientStore) ListEnrollments(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	return call(ctx, r, "list_enrollments", func(s storage.Store) ([]enrollment.Enrollment, error) {
		return s.ListEnrollments(ctx, userID)
	})
}
