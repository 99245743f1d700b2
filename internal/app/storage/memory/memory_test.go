package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
	"github.com/aetherlms/lms-server/internal/app/domain/enrollment"
	"github.com/aetherlms/lms-server/internal/app/storage"
)

func TestListCourses_FiltersAndPages(t *testing.T) {
	s := New()
	base := time.Now().Add(-time.Hour)
	s.AddCourse(course.Course{ID: "a", Title: "A", Published: true, CreatedAt: base})
	s.AddCourse(course.Course{ID: "b", Title: "B", Published: false, CreatedAt: base.Add(time.Minute)})
	s.AddCourse(course.Course{ID: "c", Title: "C", Published: true, CreatedAt: base.Add(2 * time.Minute)})

	ctx := context.Background()
	published, err := s.ListCourses(ctx, course.ListOptions{PublishedOnly: true})
	require.NoError(t, err)
	require.Len(t, published, 2)
	assert.Equal(t, "c", published[0].ID)

	page, err := s.ListCourses(ctx, course.ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	empty, err := s.ListCourses(ctx, course.ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	n, err := s.CountCourses(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListLessons_OrderedBySectionThenPosition(t *testing.T) {
	s := New()
	c := s.AddCourse(course.Course{Title: "Go"})
	second := s.AddSection(course.Section{CourseID: c.ID, Title: "Two", Position: 2})
	first := s.AddSection(course.Section{CourseID: c.ID, Title: "One", Position: 1})
	s.AddLesson(course.Lesson{SectionID: second.ID, Title: "2.1", Position: 1})
	s.AddLesson(course.Lesson{SectionID: first.ID, Title: "1.2", Position: 2})
	s.AddLesson(course.Lesson{SectionID: first.ID, Title: "1.1", Position: 1})

	lessons, err := s.ListLessons(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 3)
	assert.Equal(t, []string{"1.1", "1.2", "2.1"}, []string{lessons[0].Title, lessons[1].Title, lessons[2].Title})
}

func TestCreateEnrollment_Idempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateEnrollment(ctx, enrollment.Enrollment{UserID: "u1", CourseID: "c1"})
	require.NoError(t, err)
	second, err := s.CreateEnrollment(ctx, enrollment.Enrollment{UserID: "u1", CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, err := s.ListEnrollments(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetMissing(t *testing.T) {
	s := New()
	_, err := s.GetCourse(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetUserByExternalID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
