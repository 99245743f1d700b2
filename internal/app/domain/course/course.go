package course

import "time"

// Course is a published or draft course in a workspace.
type Course struct {
	ID           string    `db:"id" json:"id"`
	WorkspaceID  string    `db:"workspace_id" json:"workspaceId"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	ThumbnailURL string    `db:"thumbnail_url" json:"thumbnailUrl,omitempty"`
	PriceCents   int64     `db:"price_cents" json:"priceCents"`
	Published    bool      `db:"published" json:"published"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Section groups lessons inside a course.
type Section struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"courseId"`
	Title    string `db:"title" json:"title"`
	Position int    `db:"position" json:"position"`
}

// Lesson is a single unit of content.
type Lesson struct {
	ID        string `db:"id" json:"id"`
	SectionID string `db:"section_id" json:"sectionId"`
	Title     string `db:"title" json:"title"`
	Content   string `db:"content" json:"content,omitempty"`
	VideoURL  string `db:"video_url" json:"videoUrl,omitempty"`
	Position  int    `db:"position" json:"position"`
	Free      bool   `db:"free" json:"free"`
}

// ListOptions filters and pages course listings.
type ListOptions struct {
	PublishedOnly bool
	Limit         int
	Offset        int
}

// Outline is a course with its sections and lessons in display order.
type Outline struct {
	Course   Course           `json:"course"`
	Sections []SectionOutline `json:"sections"`
}

// SectionOutline is a section with its lessons.
type SectionOutline struct {
	Section
	Lessons []Lesson `json:"lessons"`
}
