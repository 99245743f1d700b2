// Package enrollments manages a learner's enrollments and workspaces.
package enrollments

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aetherlms/lms-server/internal/app/domain/enrollment"
	"github.com/aetherlms/lms-server/internal/app/domain/user"
	"github.com/aetherlms/lms-server/internal/app/storage"
	svcerrors "github.com/aetherlms/lms-server/internal/errors"
	"github.com/aetherlms/lms-server/internal/logging"
)

// Service resolves the authenticated user and acts on their behalf.
type Service struct {
	users       storage.UserStore
	courses     storage.CourseStore
	enrollments storage.EnrollmentStore
	log         *logging.Logger
}

// New constructs an enrollment service.
func New(users storage.UserStore, courses storage.CourseStore, enrollments storage.EnrollmentStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("enrollments")
	}
	return &Service{users: users, courses: courses, enrollments: enrollments, log: log}
}

func (s *Service) resolveUser(ctx context.Context, externalID string) (user.User, error) {
	if externalID == "" {
		return user.User{}, svcerrors.Unauthorized("")
	}
	u, err := s.users.GetUserByExternalID(ctx, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, svcerrors.NotFound("user")
	}
	if err != nil {
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Enroll enrolls the user in a published course. Enrolling twice returns
// the existing enrollment.
func (s *Service) Enroll(ctx context.Context, externalID, courseID string) (enrollment.Enrollment, error) {
	if courseID == "" {
		return enrollment.Enrollment{}, svcerrors.BadRequest("courseId is required")
	}

	u, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	c, err := s.courses.GetCourse(ctx, courseID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !c.Published) {
		return enrollment.Enrollment{}, svcerrors.NotFound("course")
	}
	if err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("get course: %w", err)
	}

	e, err := s.enrollments.CreateEnrollment(ctx, enrollment.Enrollment{UserID: u.ID, CourseID: c.ID})
	if err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("create enrollment: %w", err)
	}

	s.log.WithContext(ctx).WithFields(logrus.Fields{
		"course_id":     c.ID,
		"enrollment_id": e.ID,
	}).Info("user enrolled")
	return e, nil
}

// List returns the user's enrollments, newest first.
func (s *Service) List(ctx context.Context, externalID string) ([]enrollment.Enrollment, error) {
	u, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return nil, err
	}
	out, err := s.enrollments.ListEnrollments(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return out, nil
}

// Workspaces returns the workspaces owned by the user.
func (s *Service) Workspaces(ctx context.Context, externalID string) ([]user.Workspace, error) {
	u, err := s.resolveUser(ctx, externalID)
	if err != nil {
		return nil, err
	}
	out, err := s.users.ListWorkspaces(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	return out, nil
}
