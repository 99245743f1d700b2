package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
	"github.com/aetherlms/lms-server/internal/app/domain/enrollment"
	"github.com/aetherlms/lms-server/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := New(Config{DSN: "postgres://test"}, WithOpener(func(context.Context, string) (*sqlx.DB, error) {
		return sqlx.NewDb(db, "postgres"), nil
	}))

	mock.ExpectPing()
	require.NoError(t, store.Connect(context.Background()))
	return store, mock
}

func TestStore_NotConnected(t *testing.T) {
	store := New(Config{DSN: "postgres://test"})

	_, err := store.ListCourses(context.Background(), course.ListOptions{})
	assert.ErrorIs(t, err, storage.ErrNotConnected)
	assert.ErrorIs(t, store.Ping(context.Background()), storage.ErrNotConnected)
	assert.NoError(t, store.Close())
}

func TestStore_ConnectRequiresDSN(t *testing.T) {
	err := New(Config{}).Connect(context.Background())
	assert.Error(t, err)
}

func TestStore_ConnectPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	store := New(Config{DSN: "postgres://test"}, WithOpener(func(context.Context, string) (*sqlx.DB, error) {
		return sqlx.NewDb(db, "postgres"), nil
	}))

	mock.ExpectPing().WillReturnError(errors.New("dial tcp: connection refused"))
	mock.ExpectClose()

	err = store.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping database")
	assert.ErrorIs(t, store.Ping(context.Background()), storage.ErrNotConnected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ConnectRunsMigrations(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	migrated := false
	store := New(Config{DSN: "postgres://test", Migrate: true},
		WithOpener(func(context.Context, string) (*sqlx.DB, error) {
			return sqlx.NewDb(db, "postgres"), nil
		}),
		WithMigrator(func(_ context.Context, got *sql.DB) error {
			migrated = got == db
			return nil
		}),
	)

	mock.ExpectPing()
	require.NoError(t, store.Connect(context.Background()))
	assert.True(t, migrated)
}

func TestStore_ReconnectClosesPreviousPool(t *testing.T) {
	first, firstMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	second, secondMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer second.Close()

	handles := []*sql.DB{first, second}
	store := New(Config{DSN: "postgres://test"}, WithOpener(func(context.Context, string) (*sqlx.DB, error) {
		db := handles[0]
		handles = handles[1:]
		return sqlx.NewDb(db, "postgres"), nil
	}))

	firstMock.ExpectPing()
	firstMock.ExpectClose()
	secondMock.ExpectPing()

	require.NoError(t, store.Connect(context.Background()))
	require.NoError(t, store.Connect(context.Background()))

	assert.NoError(t, firstMock.ExpectationsWereMet())
	assert.NoError(t, secondMock.ExpectationsWereMet())
}

func TestStore_ListCourses(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "workspace_id", "title", "description", "thumbnail_url", "price_cents", "published", "created_at", "updated_at"}).
		AddRow("c1", "w1", "Intro to Go", "Basics", "", int64(0), true, now, now).
		AddRow("c2", "w1", "Concurrency", "", "", int64(4900), true, now, now)
	mock.ExpectQuery("FROM courses").WithArgs(true, 10, 5).WillReturnRows(rows)

	courses, err := store.ListCourses(context.Background(), course.ListOptions{PublishedOnly: true, Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "Intro to Go", courses[0].Title)
	assert.Equal(t, int64(4900), courses[1].PriceCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetCourseNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM courses").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := store.GetCourse(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ListLessons(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "section_id", "title", "content", "video_url", "position", "free"}).
		AddRow("l1", "s1", "Welcome", "", "https://cdn/1.mp4", 1, true)
	mock.ExpectQuery("JOIN sections").WithArgs("c1").WillReturnRows(rows)

	lessons, err := store.ListLessons(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.True(t, lessons[0].Free)
}

func TestStore_CreateEnrollment(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "u1", "c1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "course_id", "created_at"}).
			AddRow("e1", "u1", "c1", created))

	e, err := store.CreateEnrollment(context.Background(), enrollment.Enrollment{UserID: "u1", CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "e1", e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountCourses(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").WithArgs(false).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.CountCourses(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_CloseThenQuery(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectClose()

	require.NoError(t, store.Close())
	_, err := store.ListEnrollments(context.Background(), "u1")
	assert.ErrorIs(t, err, storage.ErrNotConnected)
}
