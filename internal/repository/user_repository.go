package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/utils"
)

// UserRepo reads and writes the users table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// NewUser carries the registration fields of a user.
type NewUser struct {
	Email          string
	Password       string
	FullName       string
	Phone          string
	Role           string
	OrganizationID *uint64
}

const userColumns = "id,email,password_hash,full_name,phone,role,profile_type,organization_id,is_active,created_at,updated_at"

// Create inserts the user and returns its ID.  The profile type is derived
// from the role; admins have none.
func (r *UserRepo) Create(ctx context.Context, nu NewUser, cost int) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(nu.Email))
	hash, err := utils.HashPassword(nu.Password, cost)
	if err != nil {
		return 0, err
	}
	profile, _ := model.ProfileTypeForRole(nu.Role)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, full_name, phone, role, profile_type, organization_id) VALUES (?,?,?,?,?,?,?)",
		email, hash, nu.FullName, nu.Phone, nu.Role, nullString(string(profile)), nu.OrganizationID)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u       model.User
		profile sql.NullString
		orgID   sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role, &profile, &orgID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if profile.Valid {
		u.ProfileType = model.BookingType(profile.String)
	}
	if orgID.Valid {
		id := uint64(orgID.Int64)
		u.OrganizationID = &id
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}
