// Package storage defines the persistence capabilities used by the LMS
// services. The postgres, memory and offline packages implement them, and the
// database package decorates them with connection supervision.
package storage

import (
	"context"
	"errors"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
	"github.com/aetherlms/lms-server/internal/app/domain/enrollment"
	"github.com/aetherlms/lms-server/internal/app/domain/user"
)

// ErrNotFound is returned by single-record lookups with no match.
var ErrNotFound = errors.New("record not found")

// CourseStore reads the course catalog.
type CourseStore interface {
	ListCourses(ctx context.Context, opts course.ListOptions) ([]course.Course, error)
	CountCourses(ctx context.Context, publishedOnly bool) (int, error)
	GetCourse(ctx context.Context, id string) (course.Course, error)
	ListSections(ctx context.Context, courseID string) ([]course.Section, error)
	ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error)
}

// UserStore reads users and their workspaces.
type UserStore interface {
	GetUserByExternalID(ctx context.Context, externalID string) (user.User, error)
	ListWorkspaces(ctx context.Context, userID string) ([]user.Workspace, error)
}

// EnrollmentStore persists enrollments.
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error)
	ListEnrollments(ctx context.Context, userID string) ([]enrollment.Enrollment, error)
}

// Store is the full data-access capability.
type Store interface {
	CourseStore
	UserStore
	EnrollmentStore

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// ErrNotConnected is returned by backends that have no live connection.
var ErrNotConnected = errors.New("database not connected")
