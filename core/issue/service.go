package issue

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/user"
)

var (
	// errors
	ErrNotFound             = errors.New("issue not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrForbidden            = errors.New("permission denied")
)

type (
	Repository interface {
		CreateIssue(ctx context.Context, iss Issue) (Issue, error)
		GetIssueByID(ctx context.Context, id int) (Issue, error)
		// FilterIssues applies AND operation on the non-zero QueryFilter fields, newest first.
		FilterIssues(ctx context.Context, filter QueryFilter) ([]Issue, error)
		UpdateIssue(ctx context.Context, iss Issue) (Issue, error)
		DeleteIssue(ctx context.Context, id int) error
	}

	NotificationRepository interface {
		CreateNotifications(ctx context.Context, notes ...Notification) error
		// ListNotifications returns the notifications of a user, newest first.
		ListNotifications(ctx context.Context, userID int) ([]Notification, error)
		MarkNotificationRead(ctx context.Context, userID, id int) (Notification, error)
	}

	// UserFinder is the part of the user service issues depend on.
	UserFinder interface {
		GetByID(ctx context.Context, id int) (user.User, error)
		Filter(ctx context.Context, filter user.QueryFilter) ([]user.User, error)
	}

	Options struct {
		Repo          Repository
		Notifications NotificationRepository
		Users         UserFinder
		Mail          core.EmailService
		Logger        core.Logger
		Validate      *validator.Validate
		Clock         clockwork.Clock // defaults to the real clock
	}

	Service struct {
		repo     Repository
		notes    NotificationRepository
		users    UserFinder
		mail     core.EmailService
		logger   core.Logger
		validate *validator.Validate
		clock    clockwork.Clock
	}
)

func NewService(opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		repo:     opts.Repo,
		notes:    opts.Notifications,
		users:    opts.Users,
		mail:     opts.Mail,
		logger:   opts.Logger,
		validate: opts.Validate,
		clock:    clock,
	}
}

// canView reports whether actor may see iss: students their own issues,
// lecturers the issues assigned to them, registrars everything.
func canView(actor user.User, iss Issue) bool {
	switch actor.Role {
	case user.RoleRegistrar:
		return true
	case user.RoleLecturer:
		return iss.IsAssignedTo(actor.ID)
	case user.RoleStudent:
		return iss.SubmittedBy == actor.ID
	}
	return false
}

func (svc *Service) List(ctx context.Context, actor user.User, filter QueryFilter) ([]Issue, error) {
	filter.Status = core.CleanString(filter.Status, true /* lower */)
	filter.SubmittedBy, filter.AssignedTo = 0, 0
	switch actor.Role {
	case user.RoleRegistrar:
	case user.RoleLecturer:
		filter.AssignedTo = actor.ID
	case user.RoleStudent:
		filter.SubmittedBy = actor.ID
	default:
		return nil, ErrForbidden
	}
	issues, err := svc.repo.FilterIssues(ctx, filter)
	return issues, errors.Wrap(err, "filtering issues")
}

// Get returns the issue if actor may see it, ErrNotFound otherwise.
func (svc *Service) Get(ctx context.Context, actor user.User, id int) (Issue, error) {
	iss, err := svc.repo.GetIssueByID(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	if !canView(actor, iss) {
		return Issue{}, ErrNotFound
	}
	return iss, nil
}

// Submit creates a pending issue on behalf of a student and notifies the registrars.
func (svc *Service) Submit(ctx context.Context, actor user.User, ni NewIssue) (Issue, error) {
	if !actor.IsStudent() {
		return Issue{}, ErrForbidden
	}
	ni.Clean()
	if err := svc.validate.Struct(ni); err != nil {
		return Issue{}, err
	}

	now := svc.clock.Now().UTC()
	iss, err := svc.repo.CreateIssue(ctx, Issue{
		Category:    ni.Category,
		Description: ni.Description,
		Status:      StatusPending,
		SubmittedBy: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Issue{}, errors.Wrap(err, "creating issue")
	}

	registrars, err := svc.users.Filter(ctx, user.QueryFilter{Role: user.RoleRegistrar, IsActive: boolPtr(true)})
	if err != nil {
		svc.logger.Error("issue: finding registrars", errors.Wrap(err, "notifying registrars"), actor)
		return iss, nil
	}
	msg := fmt.Sprintf("New %s issue #%d submitted by %s", humanize(iss.Category), iss.ID, actor.FullName())
	svc.notify(ctx, iss, msg, registrars...)
	return iss, nil
}

// Update edits a pending issue of its submitter.
func (svc *Service) Update(ctx context.Context, actor user.User, id int, ui UpdateIssue) (Issue, error) {
	iss, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Issue{}, err
	}
	if iss.SubmittedBy != actor.ID {
		return Issue{}, ErrForbidden
	}
	if iss.Status != StatusPending {
		return Issue{}, transitionError("edit", iss.Status)
	}

	ui.Clean()
	if err = svc.validate.Struct(ui); err != nil {
		return Issue{}, err
	}
	if ui.Category != nil {
		iss.Category = *ui.Category
	}
	if ui.Description != nil && *ui.Description != "" {
		iss.Description = *ui.Description
	}
	iss.UpdatedAt = svc.clock.Now().UTC()

	iss, err = svc.repo.UpdateIssue(ctx, iss)
	return iss, errors.Wrap(err, "updating issue")
}

// Delete removes an issue: its submitter may delete it while pending, registrars anytime.
func (svc *Service) Delete(ctx context.Context, actor user.User, id int) error {
	iss, err := svc.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if !actor.IsRegistrar() {
		if iss.SubmittedBy != actor.ID {
			return ErrForbidden
		}
		if iss.Status != StatusPending {
			return transitionError("delete", iss.Status)
		}
	}
	return errors.Wrap(svc.repo.DeleteIssue(ctx, id), "deleting issue")
}

// Assign hands an unresolved issue over to an active lecturer.
func (svc *Service) Assign(ctx context.Context, actor user.User, id, lecturerID int) (Issue, error) {
	if !actor.IsRegistrar() {
		return Issue{}, ErrForbidden
	}
	iss, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Issue{}, err
	}
	if iss.Status == StatusResolved {
		return Issue{}, transitionError("assign", iss.Status)
	}

	lecturer, err := svc.users.GetByID(ctx, lecturerID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return Issue{}, errors.Wrap(err, "finding lecturer")
	}
	if err != nil || !lecturer.IsLecturer() || !lecturer.IsActive {
		return Issue{}, core.NewValidationError(
			errors.New("invalid lecturer"),
			core.FieldError{Field: "lecturer_id", Error: "issues can only be assigned to active lecturers"},
		)
	}

	iss.AssignedTo = null.IntFrom(lecturer.ID)
	iss.Status = StatusInProgress
	iss.UpdatedAt = svc.clock.Now().UTC()
	if iss, err = svc.repo.UpdateIssue(ctx, iss); err != nil {
		return Issue{}, errors.Wrap(err, "updating issue")
	}

	svc.notify(ctx, iss, fmt.Sprintf("Issue #%d has been assigned to you", iss.ID), lecturer)
	if student, err := svc.users.GetByID(ctx, iss.SubmittedBy); err == nil {
		msg := fmt.Sprintf("Your issue #%d has been assigned to %s", iss.ID, lecturer.FullName())
		svc.notify(ctx, iss, msg, student)
	} else {
		svc.logger.Error("issue: finding submitter", errors.Wrap(err, "notifying student"), actor)
	}
	return iss, nil
}

// Resolve closes an in-progress issue; only its assigned lecturer may do so.
func (svc *Service) Resolve(ctx context.Context, actor user.User, id int) (Issue, error) {
	iss, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Issue{}, err
	}
	if !actor.IsLecturer() || !iss.IsAssignedTo(actor.ID) {
		return Issue{}, ErrForbidden
	}
	if iss.Status != StatusInProgress {
		return Issue{}, transitionError("resolve", iss.Status)
	}

	now := svc.clock.Now().UTC()
	iss.Status = StatusResolved
	iss.ResolvedAt = null.TimeFrom(now)
	iss.UpdatedAt = now
	if iss, err = svc.repo.UpdateIssue(ctx, iss); err != nil {
		return Issue{}, errors.Wrap(err, "updating issue")
	}

	if student, err := svc.users.GetByID(ctx, iss.SubmittedBy); err == nil {
		svc.notify(ctx, iss, fmt.Sprintf("Your issue #%d has been resolved", iss.ID), student)
	} else {
		svc.logger.Error("issue: finding submitter", errors.Wrap(err, "notifying student"), actor)
	}
	return iss, nil
}

func (svc *Service) Notifications(ctx context.Context, actor user.User) ([]Notification, error) {
	notes, err := svc.notes.ListNotifications(ctx, actor.ID)
	return notes, errors.Wrap(err, "listing notifications")
}

func (svc *Service) MarkNotificationRead(ctx context.Context, actor user.User, id int) (Notification, error) {
	return svc.notes.MarkNotificationRead(ctx, actor.ID, id)
}

// notify stores a notification for every recipient and emails them.
// Failures are logged: the issue change they report has already happened.
func (svc *Service) notify(ctx context.Context, iss Issue, msg string, recipients ...user.User) {
	if len(recipients) == 0 {
		return
	}
	now := svc.clock.Now().UTC()
	notes := make([]Notification, 0, len(recipients))
	emails := make([]*core.EmailMessage, 0, len(recipients))
	for _, usr := range recipients {
		notes = append(notes, Notification{
			UserID:    usr.ID,
			IssueID:   null.IntFrom(iss.ID),
			Message:   msg,
			CreatedAt: now,
		})
		if usr.Email != "" {
			emails = append(emails, &core.EmailMessage{
				To:      []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
				Subject: fmt.Sprintf("Issue #%d", iss.ID),
				Body:    msg + ".",
			})
		}
	}

	if err := svc.notes.CreateNotifications(ctx, notes...); err != nil {
		svc.logger.Error("issue: saving notifications", errors.Wrap(err, "notifying"), map[string]interface{}{"issue": iss.ID})
	}
	if svc.mail != nil && len(emails) > 0 {
		svc.mail.SendMessages(emails...)
	}
}

func transitionError(action, status string) error {
	return core.NewValidationError(errors.Errorf("cannot %s a %s issue", action, humanize(status)))
}

func humanize(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}

func boolPtr(b bool) *bool { return &b }
