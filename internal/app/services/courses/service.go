// Package courses serves the public course catalog.
package courses

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
	"github.com/aetherlms/lms-server/internal/app/storage"
	svcerrors "github.com/aetherlms/lms-server/internal/errors"
	"github.com/aetherlms/lms-server/internal/logging"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page is one page of a course listing.
type Page struct {
	Courses []course.Course `json:"courses"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// Service reads courses and their outlines.
type Service struct {
	store storage.CourseStore
	log   *logging.Logger
}

// New constructs a course service.
func New(store storage.CourseStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("courses")
	}
	return &Service{store: store, log: log}
}

// List returns a page of courses, newest first.
func (s *Service) List(ctx context.Context, opts course.ListOptions) (Page, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return Page{}, svcerrors.BadRequest("limit and offset must not be negative")
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limit > MaxLimit {
		opts.Limit = MaxLimit
	}

	courses, err := s.store.ListCourses(ctx, opts)
	if err != nil {
		return Page{}, fmt.Errorf("list courses: %w", err)
	}
	total, err := s.store.CountCourses(ctx, opts.PublishedOnly)
	if err != nil {
		return Page{}, fmt.Errorf("count courses: %w", err)
	}

	return Page{Courses: courses, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// Outline returns a published course with its sections and lessons in
// display order. Unpublished courses are reported as not found.
func (s *Service) Outline(ctx context.Context, id string) (course.Outline, error) {
	if id == "" {
		return course.Outline{}, svcerrors.BadRequest("course id is required")
	}

	c, err := s.store.GetCourse(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return course.Outline{}, svcerrors.NotFound("course")
	}
	if err != nil {
		return course.Outline{}, fmt.Errorf("get course %s: %w", id, err)
	}
	if !c.Published {
		return course.Outline{}, svcerrors.NotFound("course")
	}

	sections, err := s.store.ListSections(ctx, id)
	if err != nil {
		return course.Outline{}, fmt.Errorf("list sections: %w", err)
	}
	lessons, err := s.store.ListLessons(ctx, id)
	if err != nil {
		return course.Outline{}, fmt.Errorf("list lessons: %w", err)
	}

	bySection := make(map[string][]course.Lesson, len(sections))
	for _, l := range lessons {
		bySection[l.SectionID] = append(bySection[l.SectionID], l)
	}

	out := course.Outline{Course: c, Sections: make([]course.SectionOutline, 0, len(sections))}
	for _, sec := range sections {
		ls := bySection[sec.ID]
		if ls == nil {
			ls = []course.Lesson{}
		}
		out.Sections = append(out.Sections, course.SectionOutline{Section: sec, Lessons: ls})
	}

	s.log.WithContext(ctx).WithFields(logrus.Fields{
		"course_id": id,
		"sections":  len(out.Sections),
		"lessons":   len(lessons),
	}).Debug("built course outline")
	return out, nil
}
