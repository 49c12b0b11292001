package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/aits/core"
)

// Roles
const (
	RoleStudent   = "student"
	RoleLecturer  = "lecturer"
	RoleRegistrar = "registrar"
)

var (
	AllRoles = []string{RoleStudent, RoleLecturer, RoleRegistrar}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Lecturer", Value: RoleLecturer},
		{Name: "Academic Registrar", Value: RoleRegistrar},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func IsRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID            int       `json:"id" db:"id"`
	Username      string    `json:"username" db:"username"`
	Email         string    `json:"email" db:"email"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	Role          string    `json:"role" db:"role"`
	Department    string    `json:"department,omitempty" db:"department"`
	College       string    `json:"college,omitempty" db:"college"`
	StudentNumber string    `json:"student_number,omitempty" db:"student_number"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	PasswordHash  []byte    `json:"-" db:"password_hash"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"` // UTC
	LastLogin     time.Time `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) IsStudent() bool   { return u.Role == RoleStudent }
func (u User) IsLecturer() bool  { return u.Role == RoleLecturer }
func (u User) IsRegistrar() bool { return u.Role == RoleRegistrar }

// NewUser contains information needed to register a new User.
type NewUser struct {
	Username        string `json:"username" validate:"required,min=3,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	Role            string `json:"role" validate:"required,role"`
	Department      string `json:"department"`
	College         string `json:"college"`
	StudentNumber   string `json:"student_number"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Clean() {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Department = core.CleanString(nu.Department)
	nu.College = core.CleanString(nu.College)
	nu.StudentNumber = core.CleanString(nu.StudentNumber)
}

// PasswordReset carries the new password of an existing User.
type PasswordReset struct {
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	attrs           []string // attributes the password must not resemble
}

// Credentials identify a User on login. Role, when set, must match the User's role.
type Credentials struct {
	Identifier string `json:"identifier" validate:"required"` // username or email
	Password   string `json:"password" validate:"required"`
	Role       string `json:"role" validate:"omitempty,role"`
}

func (c *Credentials) Clean() {
	c.Identifier = core.CleanString(c.Identifier, true /* lower */)
	c.Role = core.CleanString(c.Role, true /* lower */)
}

type QueryFilter struct {
	Role     string `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}
