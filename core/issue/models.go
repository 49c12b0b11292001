package issue

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aits/core"
)

// Statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
)

// Categories
const (
	CategoryMissingMarks = "missing_marks"
	CategoryAppeal       = "appeal"
	CategoryCorrection   = "correction"
	CategoryOther        = "other"
)

var (
	AllStatuses   = []string{StatusPending, StatusInProgress, StatusResolved}
	AllCategories = []string{CategoryMissingMarks, CategoryAppeal, CategoryCorrection, CategoryOther}
)

type Issue struct {
	ID          int       `json:"id" db:"id"`
	Category    string    `json:"category" db:"category"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"`
	SubmittedBy int       `json:"submitted_by" db:"submitted_by"`
	AssignedTo  null.Int  `json:"assigned_to" db:"assigned_to"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC
	ResolvedAt  null.Time `json:"resolved_at" db:"resolved_at"`
}

func (i Issue) IsAssignedTo(userID int) bool {
	return i.AssignedTo.Valid && i.AssignedTo.Int == userID
}

type NewIssue struct {
	Category    string `json:"category" validate:"required,category"`
	Description string `json:"description" validate:"required,max=2000"`
}

func (ni *NewIssue) Clean() {
	ni.Category = core.CleanString(ni.Category, true /* lower */)
	ni.Description = core.CleanString(ni.Description)
}

// UpdateIssue defines what information may be provided to modify a pending Issue.
type UpdateIssue struct {
	Category    *string `json:"category" validate:"omitempty,category"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

func (ui *UpdateIssue) Clean() {
	if ui.Category != nil {
		c := core.CleanString(*ui.Category, true /* lower */)
		ui.Category = &c
	}
	if ui.Description != nil {
		d := core.CleanString(*ui.Description)
		ui.Description = &d
	}
}

type QueryFilter struct {
	Status      string `query:"status"`
	SubmittedBy int    `query:"-"`
	AssignedTo  int    `query:"-"`
}

type Notification struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	IssueID   null.Int  `json:"issue_id" db:"issue_id"`
	Message   string    `json:"message" db:"message"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}
