package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/aits/core/issue"
)

const issueColumns = `id, category, description, status, submitted_by, assigned_to, created_at, updated_at, resolved_at`

type issueRepository struct {
	db *sqlx.DB
}

var (
	_ issue.Repository             = (*issueRepository)(nil)
	_ issue.NotificationRepository = (*issueRepository)(nil)
)

// NewIssueRepository returns a repository for both issues and their notifications.
func NewIssueRepository(db *sqlx.DB) *issueRepository {
	return &issueRepository{db: db}
}

func (repo *issueRepository) CreateIssue(ctx context.Context, iss issue.Issue) (issue.Issue, error) {
	q := `INSERT INTO issues (category, description, status, submitted_by, assigned_to, created_at, updated_at, resolved_at)
	VALUES (:category, :description, :status, :submitted_by, :assigned_to, :created_at, :updated_at, :resolved_at)
	RETURNING id`
	rows, err := repo.db.NamedQueryContext(ctx, q, iss)
	if err != nil {
		return issue.Issue{}, errors.Wrap(err, "inserting issue")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&iss.ID); err != nil {
			return issue.Issue{}, errors.Wrap(err, "scanning issue id")
		}
	}
	return iss, errors.Wrap(rows.Err(), "inserting issue")
}

func (repo *issueRepository) GetIssueByID(ctx context.Context, id int) (issue.Issue, error) {
	var iss issue.Issue
	if err := repo.db.GetContext(ctx, &iss, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return issue.Issue{}, issue.ErrNotFound
		}
		return issue.Issue{}, errors.Wrap(err, "selecting issue")
	}
	return iss, nil
}

func (repo *issueRepository) FilterIssues(ctx context.Context, filter issue.QueryFilter) ([]issue.Issue, error) {
	q := `SELECT ` + issueColumns + ` FROM issues
	WHERE ($1::text = '' OR status = $1)
		AND ($2::integer = 0 OR submitted_by = $2)
		AND ($3::integer = 0 OR assigned_to = $3)
	ORDER BY id DESC`
	issues := make([]issue.Issue, 0)
	if err := repo.db.SelectContext(ctx, &issues, q, filter.Status, filter.SubmittedBy, filter.AssignedTo); err != nil {
		return nil, errors.Wrap(err, "selecting issues")
	}
	return issues, nil
}

func (repo *issueRepository) UpdateIssue(ctx context.Context, iss issue.Issue) (issue.Issue, error) {
	q := `UPDATE issues SET category = :category, description = :description, status = :status,
		assigned_to = :assigned_to, updated_at = :updated_at, resolved_at = :resolved_at
	WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, iss)
	if err != nil {
		return issue.Issue{}, errors.Wrap(err, "updating issue")
	}
	if err = checkAffected(res, issue.ErrNotFound); err != nil {
		return issue.Issue{}, err
	}
	return iss, nil
}

func (repo *issueRepository) DeleteIssue(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM issues WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting issue")
	}
	return checkAffected(res, issue.ErrNotFound)
}

func (repo *issueRepository) CreateNotifications(ctx context.Context, notes ...issue.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	q := `INSERT INTO notifications (user_id, issue_id, message, is_read, created_at)
	VALUES (:user_id, :issue_id, :message, :is_read, :created_at)`
	for _, n := range notes {
		if _, err = tx.NamedExecContext(ctx, q, n); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "inserting notification")
		}
	}
	return errors.Wrap(tx.Commit(), "committing notifications")
}

func (repo *issueRepository) ListNotifications(ctx context.Context, userID int) ([]issue.Notification, error) {
	q := `SELECT id, user_id, issue_id, message, is_read, created_at FROM notifications
	WHERE user_id = $1 ORDER BY id DESC`
	notes := make([]issue.Notification, 0)
	if err := repo.db.SelectContext(ctx, &notes, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}
	return notes, nil
}

func (repo *issueRepository) MarkNotificationRead(ctx context.Context, userID, id int) (issue.Notification, error) {
	q := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2
	RETURNING id, user_id, issue_id, message, is_read, created_at`
	var n issue.Notification
	if err := repo.db.GetContext(ctx, &n, q, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return issue.Notification{}, issue.ErrNotificationNotFound
		}
		return issue.Notification{}, errors.Wrap(err, "updating notification")
	}
	return n, nil
}
