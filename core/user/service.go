package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/aits/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
)

type Repository interface {
	// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when taken.
	CheckUniqueness(ctx context.Context, username, email string) error
	CreateUser(ctx context.Context, usr User) (User, error)
	GetUserByID(ctx context.Context, id int) (User, error)
	// GetUserByUsernameOrEmail matches identifier against both User.Username and User.Email.
	GetUserByUsernameOrEmail(ctx context.Context, identifier string) (User, error)
	// FilterUsers applies AND operation on available QueryFilter fields, ordered by ID.
	FilterUsers(ctx context.Context, filter QueryFilter) ([]User, error)
	SetLastLogin(ctx context.Context, id int, at time.Time) error
	// UpdateUser saves the profile, activation status and password hash of usr.
	UpdateUser(ctx context.Context, usr User) (User, error)
}

type Service struct {
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{
		repo:     repo,
		validate: validate,
		now:      time.Now,
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Register validates nu and creates an active User.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	usr := User{
		Username:   nu.Username,
		Email:      nu.Email,
		FirstName:  nu.FirstName,
		LastName:   nu.LastName,
		Role:       nu.Role,
		Department: nu.Department,
		College:    nu.College,
		IsActive:   true,
		CreatedAt:  svc.now().UTC(),
	}
	if usr.IsStudent() {
		usr.StudentNumber = nu.StudentNumber
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

// Authenticate checks the credentials and records the login.
// Unknown identifiers, wrong passwords and role mismatches all fail with ErrInvalidCredentials.
func (svc *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	creds.Clean()
	if err := svc.validate.Struct(creds); err != nil {
		return User{}, err
	}

	usr, err := svc.repo.GetUserByUsernameOrEmail(ctx, creds.Identifier)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(creds.Password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if creds.Role != "" && creds.Role != usr.Role {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	usr.LastLogin = svc.now().UTC()
	if err = svc.repo.SetLastLogin(ctx, usr.ID, usr.LastLogin); err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.FilterUsers(ctx, filter)
}

// ResetPassword sets a new password on the user identified by username or email.
// The password policy of Register applies.
func (svc *Service) ResetPassword(ctx context.Context, identifier string, pr PasswordReset) error {
	usr, err := svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(identifier, true /* lower */))
	if err != nil {
		return err
	}
	pr.attrs = []string{usr.Username, usr.Email, usr.FirstName, usr.LastName}
	if err = svc.validate.Struct(pr); err != nil {
		return err
	}
	if err = usr.SetPassword(pr.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// SetActive activates or deactivates the user identified by username or email.
// Deactivated users can neither log in nor refresh their tokens.
func (svc *Service) SetActive(ctx context.Context, identifier string, active bool) (User, error) {
	usr, err := svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(identifier, true /* lower */))
	if err != nil {
		return User{}, err
	}
	if usr.IsActive == active {
		return usr, nil
	}
	usr.IsActive = active
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}
