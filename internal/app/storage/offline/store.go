// Package offline provides the data store used when no live database may be
// contacted (static builds, SKIP_DB_CHECK). Every read succeeds with an empty
// result and every write is echoed back without being persisted.
package offline

import (
	"context"
	"time"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
	"github.com/aetherlms/lms-server/internal/app/domain/enrollment"
	"github.com/aetherlms/lms-server/internal/app/domain/user"
	"github.com/aetherlms/lms-server/internal/app/storage"
)

// Store satisfies storage.Store without a backend.
type Store struct{}

var _ storage.Store = Store{}

// New returns an offline store.
func New() Store {
	return Store{}
}

func (Store) Ping(context.Context) error { return nil }

func (Store) ListCourses(context.Context, course.ListOptions) ([]course.Course, error) {
	return []course.Course{}, nil
}

func (Store) CountCourses(context.Context, bool) (int, error) { return 0, nil }

func (Store) GetCourse(context.Context, string) (course.Course, error) {
	return course.Course{}, storage.ErrNotFound
}

func (Store) ListSections(context.Context, string) ([]course.Section, error) {
	return []course.Section{}, nil
}

func (Store) ListLessons(context.Context, string) ([]course.Lesson, error) {
	return []course.Lesson{}, nil
}

func (Store) GetUserByExternalID(context.Context, string) (user.User, error) {
	return user.User{}, storage.ErrNotFound
}

func (Store) ListWorkspaces(context.Context, string) ([]user.Workspace, error) {
	return []user.Workspace{}, nil
}

func (Store) CreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e, nil
}

func (Store) ListEnrollments(context.Context, string) ([]enrollment.Enrollment, error) {
	return []enrollment.Enrollment{}, nil
}
