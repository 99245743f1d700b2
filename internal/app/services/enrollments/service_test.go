package enrollments

import (
	"context"
	"testing"

	"github.com/aetherlms/lms-server/internal/app/domain/course"
	"github.com/aetherlms/lms-server/internal/app/domain/user"
	"github.com/aetherlms/lms-server/internal/app/storage/memory"
	svcerrors "github.com/aetherlms/lms-server/internal/errors"
)

func setup(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	u := store.AddUser(user.User{ID: "u1", ExternalID: "user_ext", Email: "learner@example.com", Role: "student"})
	store.AddWorkspace(user.Workspace{ID: "w1", OwnerID: u.ID, Name: "Personal", Type: user.WorkspacePersonal})
	store.AddCourse(course.Course{ID: "go", Title: "Go", Published: true})
	store.AddCourse(course.Course{ID: "draft", Title: "Draft"})
	return New(store, store, store, nil), store
}

func TestService_EnrollIsIdempotent(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	first, err := svc.Enroll(ctx, "user_ext", "go")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if first.UserID != "u1" || first.CourseID != "go" {
		t.Fatalf("unexpected enrollment: %+v", first)
	}

	second, err := svc.Enroll(ctx, "user_ext", "go")
	if err != nil {
		t.Fatalf("enroll again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same enrollment, got %s and %s", first.ID, second.ID)
	}

	list, err := svc.List(ctx, "user_ext")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 enrollment, got %d", len(list))
	}
}

func TestService_EnrollErrors(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		external string
		courseID string
		code     svcerrors.Code
	}{
		{"no course id", "user_ext", "", svcerrors.CodeBadRequest},
		{"anonymous", "", "go", svcerrors.CodeUnauthorized},
		{"unknown user", "user_other", "go", svcerrors.CodeNotFound},
		{"unknown course", "user_ext", "missing", svcerrors.CodeNotFound},
		{"unpublished course", "user_ext", "draft", svcerrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Enroll(ctx, tt.external, tt.courseID)
			se := svcerrors.GetServiceError(err)
			if se == nil || se.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestService_Workspaces(t *testing.T) {
	svc, _ := setup(t)

	ws, err := svc.Workspaces(context.Background(), "user_ext")
	if err != nil {
		t.Fatalf("workspaces: %v", err)
	}
	if len(ws) != 1 || ws[0].Type != user.WorkspacePersonal {
		t.Fatalf("unexpected workspaces: %+v", ws)
	}
}
