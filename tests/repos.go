package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/user"
)

// IssueStore is implemented by the issue repositories of every database backend.
type IssueStore interface {
	issue.Repository
	issue.NotificationRepository
}

// RunUserRepositoryTests checks the behaviour shared by every user.Repository. repo must be empty.
func RunUserRepositoryTests(t *testing.T, repo user.Repository) {
	ctx := context.Background()

	student := CreateUser(t, repo, "kato", user.RoleStudent, true)
	lecturer := CreateUser(t, repo, "nakato", user.RoleLecturer, true)
	retired := CreateUser(t, repo, "okello", user.RoleLecturer, false)

	t.Run("CheckUniqueness", func(t *testing.T) {
		tests := []struct {
			name, username, email string
			wantErr               error
		}{
			{name: "free", username: "new", email: "new@aits.test"},
			{name: "username taken", username: "kato", email: "new@aits.test", wantErr: user.ErrUsernameExists},
			{name: "email taken", username: "new", email: "nakato@aits.test", wantErr: user.ErrEmailExists},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.wantErr, repo.CheckUniqueness(ctx, tt.username, tt.email))
			})
		}
	})

	t.Run("GetUserByID", func(t *testing.T) {
		got, err := repo.GetUserByID(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, student.Username, got.Username)
		assert.Equal(t, student.StudentNumber, got.StudentNumber)
		assert.NoError(t, got.CheckPassword(Password))

		_, err = repo.GetUserByID(ctx, 9999)
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("GetUserByUsernameOrEmail", func(t *testing.T) {
		for _, ident := range []string{"nakato", "nakato@aits.test"} {
			got, err := repo.GetUserByUsernameOrEmail(ctx, ident)
			require.NoError(t, err)
			assert.Equal(t, lecturer.ID, got.ID)
		}
		_, err := repo.GetUserByUsernameOrEmail(ctx, "nobody")
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("FilterUsers", func(t *testing.T) {
		ids := func(users []user.User) []int {
			out := make([]int, 0, len(users))
			for _, u := range users {
				out = append(out, u.ID)
			}
			return out
		}
		active := true

		tests := []struct {
			name   string
			filter user.QueryFilter
			want   []int
		}{
			{name: "all", want: []int{student.ID, lecturer.ID, retired.ID}},
			{name: "role", filter: user.QueryFilter{Role: user.RoleLecturer}, want: []int{lecturer.ID, retired.ID}},
			{name: "role & active", filter: user.QueryFilter{Role: user.RoleLecturer, IsActive: &active}, want: []int{lecturer.ID}},
			{name: "unknown role", filter: user.QueryFilter{Role: "dean"}, want: []int{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.FilterUsers(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(got))
			})
		}
	})

	t.Run("SetLastLogin", func(t *testing.T) {
		at := time.Date(2023, 9, 1, 8, 30, 0, 0, time.UTC)
		require.NoError(t, repo.SetLastLogin(ctx, student.ID, at))
		got, err := repo.GetUserByID(ctx, student.ID)
		require.NoError(t, err)
		assert.True(t, at.Equal(got.LastLogin))

		assert.Equal(t, user.ErrNotFound, repo.SetLastLogin(ctx, 9999, at))
	})

	t.Run("UpdateUser", func(t *testing.T) {
		usr, err := repo.GetUserByID(ctx, lecturer.ID)
		require.NoError(t, err)
		usr.Department = "Computer Science"
		usr.IsActive = false
		require.NoError(t, usr.SetPassword("Entebbe#2024"))

		got, err := repo.UpdateUser(ctx, usr)
		require.NoError(t, err)
		assert.Equal(t, "Computer Science", got.Department)
		assert.False(t, got.IsActive)
		assert.NoError(t, got.CheckPassword("Entebbe#2024"))
		assert.Equal(t, lecturer.Username, got.Username)

		_, err = repo.UpdateUser(ctx, user.User{ID: 9999})
		assert.Equal(t, user.ErrNotFound, err)
	})
}

// RunIssueRepositoryTests checks the behaviour shared by every IssueStore. Both repositories must be empty.
func RunIssueRepositoryTests(t *testing.T, users user.Repository, repo IssueStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	student := CreateUser(t, users, "amina", user.RoleStudent, true)
	other := CreateUser(t, users, "brian", user.RoleStudent, true)
	lecturer := CreateUser(t, users, "cissy", user.RoleLecturer, true)

	create := func(by int, status string) issue.Issue {
		iss, err := repo.CreateIssue(ctx, issue.Issue{
			Category:    issue.CategoryMissingMarks,
			Description: "CSC 1100 coursework mark missing",
			Status:      status,
			SubmittedBy: by,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		require.NoError(t, err)
		require.NotZero(t, iss.ID)
		return iss
	}
	first := create(student.ID, issue.StatusPending)
	second := create(other.ID, issue.StatusPending)

	t.Run("GetIssueByID", func(t *testing.T) {
		got, err := repo.GetIssueByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Description, got.Description)
		assert.False(t, got.AssignedTo.Valid)
		assert.False(t, got.ResolvedAt.Valid)

		_, err = repo.GetIssueByID(ctx, 9999)
		assert.Equal(t, issue.ErrNotFound, err)
	})

	t.Run("UpdateIssue", func(t *testing.T) {
		second.AssignedTo = null.IntFrom(lecturer.ID)
		second.Status = issue.StatusInProgress
		second.ResolvedAt = null.TimeFrom(now)
		_, err := repo.UpdateIssue(ctx, second)
		require.NoError(t, err)

		got, err := repo.GetIssueByID(ctx, second.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAssignedTo(lecturer.ID))
		assert.Equal(t, issue.StatusInProgress, got.Status)
		assert.True(t, now.Equal(got.ResolvedAt.Time))

		_, err = repo.UpdateIssue(ctx, issue.Issue{ID: 9999, Status: issue.StatusPending})
		assert.Equal(t, issue.ErrNotFound, err)
	})

	t.Run("FilterIssues", func(t *testing.T) {
		tests := []struct {
			name   string
			filter issue.QueryFilter
			want   []int
		}{
			{name: "all, newest first", want: []int{second.ID, first.ID}},
			{name: "status", filter: issue.QueryFilter{Status: issue.StatusPending}, want: []int{first.ID}},
			{name: "submitted by", filter: issue.QueryFilter{SubmittedBy: student.ID}, want: []int{first.ID}},
			{name: "assigned to", filter: issue.QueryFilter{AssignedTo: lecturer.ID}, want: []int{second.ID}},
			{name: "no match", filter: issue.QueryFilter{Status: issue.StatusResolved}, want: []int{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.FilterIssues(ctx, tt.filter)
				require.NoError(t, err)
				ids := make([]int, 0, len(got))
				for _, iss := range got {
					ids = append(ids, iss.ID)
				}
				assert.Equal(t, tt.want, ids)
			})
		}
	})

	t.Run("notifications", func(t *testing.T) {
		require.NoError(t, repo.CreateNotifications(ctx,
			issue.Notification{UserID: student.ID, IssueID: null.IntFrom(first.ID), Message: "one", CreatedAt: now},
			issue.Notification{UserID: student.ID, IssueID: null.IntFrom(first.ID), Message: "two", CreatedAt: now},
			issue.Notification{UserID: lecturer.ID, IssueID: null.IntFrom(second.ID), Message: "three", CreatedAt: now},
		))

		notes, err := repo.ListNotifications(ctx, student.ID)
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, "two", notes[0].Message)
		assert.Equal(t, "one", notes[1].Message)
		assert.False(t, notes[0].IsRead)

		read, err := repo.MarkNotificationRead(ctx, student.ID, notes[1].ID)
		require.NoError(t, err)
		assert.True(t, read.IsRead)

		_, err = repo.MarkNotificationRead(ctx, lecturer.ID, notes[0].ID)
		assert.Equal(t, issue.ErrNotificationNotFound, err, "cannot mark someone else's notification")
	})

	t.Run("DeleteIssue", func(t *testing.T) {
		require.NoError(t, repo.DeleteIssue(ctx, first.ID))
		_, err := repo.GetIssueByID(ctx, first.ID)
		assert.Equal(t, issue.ErrNotFound, err)
		assert.Equal(t, issue.ErrNotFound, repo.DeleteIssue(ctx, first.ID))
	})
}
