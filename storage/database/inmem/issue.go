package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/aits/core/issue"
)

type issueRepository struct {
	db    *table[issue.Issue]
	notes *table[issue.Notification]
}

var (
	_ issue.Repository             = (*issueRepository)(nil)
	_ issue.NotificationRepository = (*issueRepository)(nil)
)

// NewIssueRepository returns a repository for both issues and their notifications.
func NewIssueRepository(db *DB) *issueRepository {
	return &issueRepository{db: db.issue, notes: db.notification}
}

func (repo *issueRepository) CreateIssue(_ context.Context, iss issue.Issue) (issue.Issue, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	iss.ID = repo.db.nextPK()
	repo.db.rows[iss.ID] = &iss
	return iss, nil
}

func (repo *issueRepository) GetIssueByID(_ context.Context, id int) (issue.Issue, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if iss, ok := repo.db.rows[id]; ok {
		return *iss, nil
	}
	return issue.Issue{}, issue.ErrNotFound
}

func (repo *issueRepository) FilterIssues(_ context.Context, filter issue.QueryFilter) ([]issue.Issue, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	issues := make([]issue.Issue, 0)
	for _, iss := range repo.db.all() {
		if filter.Status != "" && iss.Status != filter.Status {
			continue
		}
		if filter.SubmittedBy != 0 && iss.SubmittedBy != filter.SubmittedBy {
			continue
		}
		if filter.AssignedTo != 0 && !iss.IsAssignedTo(filter.AssignedTo) {
			continue
		}
		issues = append(issues, iss)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].ID > issues[j].ID })
	return issues, nil
}

func (repo *issueRepository) UpdateIssue(_ context.Context, iss issue.Issue) (issue.Issue, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[iss.ID]; !ok {
		return issue.Issue{}, issue.ErrNotFound
	}
	repo.db.rows[iss.ID] = &iss
	return iss, nil
}

func (repo *issueRepository) DeleteIssue(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return issue.ErrNotFound
	}
	delete(repo.db.rows, id)
	return nil
}

func (repo *issueRepository) CreateNotifications(_ context.Context, notes ...issue.Notification) error {
	repo.notes.mutex.Lock()
	defer repo.notes.mutex.Unlock()

	for _, n := range notes {
		n := n
		n.ID = repo.notes.nextPK()
		repo.notes.rows[n.ID] = &n
	}
	return nil
}

func (repo *issueRepository) ListNotifications(_ context.Context, userID int) ([]issue.Notification, error) {
	repo.notes.mutex.RLock()
	defer repo.notes.mutex.RUnlock()

	notes := make([]issue.Notification, 0)
	for _, n := range repo.notes.all() {
		if n.UserID == userID {
			notes = append(notes, n)
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID > notes[j].ID })
	return notes, nil
}

func (repo *issueRepository) MarkNotificationRead(_ context.Context, userID, id int) (issue.Notification, error) {
	repo.notes.mutex.Lock()
	defer repo.notes.mutex.Unlock()

	n, ok := repo.notes.rows[id]
	if !ok || n.UserID != userID {
		return issue.Notification{}, issue.ErrNotificationNotFound
	}
	n.IsRead = true
	return *n, nil
}
