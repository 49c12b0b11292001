// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/aits/core/user"
)

const userColumns = `id, username, email, first_name, last_name, role, department, college,
	student_number, is_active, password_hash, created_at, last_login`

// userRow mirrors the users table; last_login is NULL until the first login.
type userRow struct {
	user.User
	LastLogin null.Time `db:"last_login"`
}

func (r userRow) toUser() user.User {
	usr := r.User
	usr.LastLogin = r.LastLogin.Time
	return usr
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string) error {
	var taken []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	q := `SELECT username, email FROM users WHERE username = $1 OR email = $2`
	if err := repo.db.SelectContext(ctx, &taken, q, username, email); err != nil {
		return errors.Wrap(err, "selecting users")
	}
	for _, t := range taken {
		if t.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (username, email, first_name, last_name, role, department, college,
		student_number, is_active, password_hash, created_at)
	VALUES (:username, :email, :first_name, :last_name, :role, :department, :college,
		:student_number, :is_active, :password_hash, :created_at)
	RETURNING id`
	rows, err := repo.db.NamedQueryContext(ctx, q, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&usr.ID); err != nil {
			return user.User{}, errors.Wrap(err, "scanning user id")
		}
	}
	return usr, errors.Wrap(rows.Err(), "inserting user")
}

func (repo *userRepository) get(ctx context.Context, where string, args ...interface{}) (user.User, error) {
	var row userRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	return repo.get(ctx, `id = $1`, id)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, identifier string) (user.User, error) {
	return repo.get(ctx, `username = $1 OR email = $1`, identifier)
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM users
	WHERE ($1::text = '' OR role = $1) AND ($2::boolean IS NULL OR is_active = $2)
	ORDER BY id`
	var isActive null.Bool
	if filter.IsActive != nil {
		isActive = null.BoolFrom(*filter.IsActive)
	}
	if err := repo.db.SelectContext(ctx, &rows, q, filter.Role, isActive); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}

	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id int, at time.Time) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
	if err != nil {
		return errors.Wrap(err, "updating last_login")
	}
	return checkAffected(res, user.ErrNotFound)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET first_name = :first_name, last_name = :last_name, department = :department,
	college = :college, student_number = :student_number, is_active = :is_active, password_hash = :password_hash
	WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return repo.GetUserByID(ctx, usr.ID)
}

// checkAffected returns notFound when res touched no row.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "getting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
