package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
	"github.com/aetherlms/lms-server/internal/app/domain/enrollment"
	"github.com/aetherlms/lms-server/internal/app/domain/user"
	"github.com/aetherlms/lms-server/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	courses     map[string]course.Course
	sections    map[string]course.Section
	lessons     map[string]course.Lesson
	users       map[string]user.User
	workspaces  map[string]user.Workspace
	enrollments map[string]enrollment.Enrollment
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		courses:     make(map[string]course.Course),
		sections:    make(map[string]course.Section),
		lessons:     make(map[string]course.Lesson),
		users:       make(map[string]user.User),
		workspaces:  make(map[string]user.Workspace),
		enrollments: make(map[string]enrollment.Enrollment),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// --- seeding ---------------------------------------------------------------

// AddCourse inserts c, assigning an ID when empty.
func (s *Store) AddCourse(c course.Course) course.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.courses[c.ID] = c
	return c
}

// AddSection inserts sec, assigning an ID when empty.
func (s *Store) AddSection(sec course.Section) course.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec.ID == "" {
		sec.ID = s.nextIDLocked()
	}
	s.sections[sec.ID] = sec
	return sec
}

// AddLesson inserts l, assigning an ID when empty.
func (s *Store) AddLesson(l course.Lesson) course.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = s.nextIDLocked()
	}
	s.lessons[l.ID] = l
	return l
}

// AddUser inserts u, assigning an ID when empty.
func (s *Store) AddUser(u user.User) user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.nextIDLocked()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u
}

// AddWorkspace inserts w, assigning an ID when empty.
func (s *Store) AddWorkspace(w user.Workspace) user.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = s.nextIDLocked()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	s.workspaces[w.ID] = w
	return w
}

// --- CourseStore -----------------------------------------------------------

func (s *Store) ListCourses(_ context.Context, opts course.ListOptions) ([]course.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []course.Course{}
	for _, c := range s.courses {
		if opts.PublishedOnly && !c.Published {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []course.Course{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *Store) CountCourses(_ context.Context, publishedOnly bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.courses {
		if publishedOnly && !c.Published {
			continue
		}
		n++
	}
	return n, nil
}

func (s *Store) GetCourse(_ context.Context, id string) (course.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[id]
	if !ok {
		return course.Course{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListSections(_ context.Context, courseID string) ([]course.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []course.Section{}
	for _, sec := range s.sections {
		if sec.CourseID == courseID {
			result = append(result, sec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (s *Store) ListLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []course.Lesson{}
	for _, l := range s.lessons {
		sec, ok := s.sections[l.SectionID]
		if ok && sec.CourseID == courseID {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		si, sj := s.sections[result[i].SectionID], s.sections[result[j].SectionID]
		if si.Position != sj.Position {
			return si.Position < sj.Position
		}
		return result[i].Position < result[j].Position
	})
	return result, nil
}

// --- UserStore -------------------------------------------------------------

func (s *Store) GetUserByExternalID(_ context.Context, externalID string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ExternalID == externalID {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (s *Store) ListWorkspaces(_ context.Context, userID string) ([]user.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []user.Workspace{}
	for _, w := range s.workspaces {
		if w.OwnerID == userID {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- EnrollmentStore -------------------------------------------------------

func (s *Store) CreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.enrollments {
		if existing.UserID == e.UserID && existing.CourseID == e.CourseID {
			return existing, nil
		}
	}
	if e.ID == "" {
		e.ID = s.nextIDLocked()
	}
	e.CreatedAt = time.Now().UTC()
	s.enrollments[e.ID] = e
	return e, nil
}

func (s *Store) ListEnrollments(_ context.Context, userID string) ([]enrollment.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []enrollment.Enrollment{}
	for _, e := range s.enrollments {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
