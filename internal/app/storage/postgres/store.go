package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
	"github.com/aetherlms/lms-server/internal/app/domain/enrollment"
	"github.com/aetherlms/lms-server/internal/app/domain/user"
	"github.com/aetherlms/lms-server/internal/app/storage"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
)

// Config describes the PostgreSQL connection.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

// OpenFunc opens a database handle without verifying connectivity.
type OpenFunc func(ctx context.Context, dsn string) (*sqlx.DB, error)

// MigrateFunc brings the schema up to date.
type MigrateFunc func(ctx context.Context, db *sql.DB) error

// Option customises a Store.
type Option func(*Store)

// WithOpener replaces the function used to open handles.
func WithOpener(fn OpenFunc) Option {
	return func(s *Store) { s.open = fn }
}

// WithMigrator replaces the schema migration step.
func WithMigrator(fn MigrateFunc) Option {
	return func(s *Store) { s.migrate = fn }
}

// Store implements the storage interfaces backed by PostgreSQL. The handle
// is replaced as a whole on every Connect; queries never observe a half-open
// pool.
type Store struct {
	cfg     Config
	open    OpenFunc
	migrate MigrateFunc

	mu sync.RWMutex
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a disconnected Store. Call Connect before issuing queries.
func New(cfg Config, opts ...Option) *Store {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaultConnMaxLifetime
	}

	s := &Store{
		cfg:     cfg,
		open:    openPostgres,
		migrate: RunMigrations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func openPostgres(_ context.Context, dsn string) (*sqlx.DB, error) {
	return sqlx.Open("postgres", dsn)
}

// Connect opens a new pool, verifies it and runs migrations when enabled.
// A previously open pool is closed once the new one is in place.
func (s *Store) Connect(ctx context.Context) error {
	if s.cfg.DSN == "" {
		return fmt.Errorf("database dsn not configured")
	}

	db, err := s.open(ctx, s.cfg.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	if s.cfg.Migrate && s.migrate != nil {
		if err := s.migrate(ctx, db.DB); err != nil {
			db.Close()
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	s.mu.Lock()
	prev := s.db
	s.db = db
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Close releases the pool. Queries issued afterwards fail with
// storage.ErrNotConnected until Connect succeeds again.
func (s *Store) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close()
}

func (s *Store) conn() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, storage.ErrNotConnected
	}
	return s.db, nil
}

// Ping verifies the current pool.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// --- CourseStore -----------------------------------------------------------

const courseColumns = `id, workspace_id, title, COALESCE(description, '') AS description,
	COALESCE(thumbnail_url, '') AS thumbnail_url, price_cents, published, created_at, updated_at`

func (s *Store) ListCourses(ctx context.Context, opts course.ListOptions) ([]course.Course, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var limit interface{}
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	courses := []course.Course{}
	err = db.SelectContext(ctx, &courses, `
		SELECT `+courseColumns+`
		FROM courses
		WHERE ($1 = false OR published = true)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, opts.PublishedOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	return courses, nil
}

func (s *Store) CountCourses(ctx context.Context, publishedOnly bool) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var n int
	err = db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM courses WHERE ($1 = false OR published = true)
	`, publishedOnly)
	return n, err
}

func (s *Store) GetCourse(ctx context.Context, id string) (course.Course, error) {
	db, err := s.conn()
	if err != nil {
		return course.Course{}, err
	}

	var c course.Course
	err = db.GetContext(ctx, &c, `
		SELECT `+courseColumns+`
		FROM courses
		WHERE id = $1
	`, id)
	if err != nil {
		return course.Course{}, notFound(err)
	}
	return c, nil
}

func (s *Store) ListSections(ctx context.Context, courseID string) ([]course.Section, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	sections := []course.Section{}
	err = db.SelectContext(ctx, &sections, `
		SELECT id, course_id, title, position
		FROM sections
		WHERE course_id = $1
		ORDER BY position, id
	`, courseID)
	if err != nil {
		return nil, err
	}
	return sections, nil
}

func (s *Store) ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	lessons := []course.Lesson{}
	err = db.SelectContext(ctx, &lessons, `
		SELECT l.id, l.section_id, l.title, COALESCE(l.content, '') AS content,
			COALESCE(l.video_url, '') AS video_url, l.position, l.free
		FROM lessons l
		JOIN sections s ON s.id = l.section_id
		WHERE s.course_id = $1
		ORDER BY s.position, l.position, l.id
	`, courseID)
	if err != nil {
		return nil, err
	}
	return lessons, nil
}

// --- UserStore -------------------------------------------------------------

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (user.User, error) {
	db, err := s.conn()
	if err != nil {
		return user.User{}, err
	}

	var u user.User
	err = db.GetContext(ctx, &u, `
		SELECT id, external_id, email, COALESCE(first_name, '') AS first_name,
			COALESCE(last_name, '') AS last_name, role, created_at
		FROM users
		WHERE external_id = $1
	`, externalID)
	if err != nil {
		return user.User{}, notFound(err)
	}
	return u, nil
}

func (s *Store) ListWorkspaces(ctx context.Context, userID string) ([]user.Workspace, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	workspaces := []user.Workspace{}
	err = db.SelectContext(ctx, &workspaces, `
		SELECT id, owner_id, name, type, created_at
		FROM workspaces
		WHERE owner_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	return workspaces, nil
}

// --- EnrollmentStore -------------------------------------------------------

// CreateEnrollment inserts an enrollment or returns the existing one for the
// same user and course.
func (s *Store) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	db, err := s.conn()
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var out enrollment.Enrollment
	err = db.GetContext(ctx, &out, `
		INSERT INTO enrollments (id, user_id, course_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, course_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, course_id, created_at
	`, e.ID, e.UserID, e.CourseID, e.CreatedAt)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return out, nil
}

func (s *Store) ListEnrollments(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	enrollments := []enrollment.Enrollment{}
	err = db.SelectContext(ctx, &enrollments, `
		SELECT id, user_id, course_id, created_at
		FROM enrollments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
