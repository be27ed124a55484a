package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"chatd/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, name, real_name, birth_date, gender, hashed_password, avatar, avatars_gallery, bio, last_active, created_at`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	gallery, err := marshalGallery(u.AvatarGallery)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, real_name, birth_date, gender, hashed_password, avatar, avatars_gallery, bio, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, u.ID, u.Name, u.RealName, u.BirthDate, u.Gender, u.HashedPassword, u.Avatar, gallery, u.Bio)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByName(ctx context.Context, name string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE name = ?`, name)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var res []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r *UserRepo) UpdateProfile(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET real_name = ?, birth_date = ?, gender = ?, bio = ? WHERE id = ?
	`, u.RealName, u.BirthDate, u.Gender, u.Bio, u.ID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (r *UserRepo) UpdateAvatar(ctx context.Context, id string, avatar *string, gallery []string) error {
	g, err := marshalGallery(gallery)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE users SET avatar = ?, avatars_gallery = ? WHERE id = ?
	`, avatar, g, id)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return nil
}

func (r *UserRepo) TouchLastActive(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_active = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("touch last_active: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	var gallery sql.NullString
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.RealName,
		&u.BirthDate,
		&u.Gender,
		&u.HashedPassword,
		&u.Avatar,
		&gallery,
		&u.Bio,
		&u.LastActive,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	if gallery.Valid && gallery.String != "" {
		if err := json.Unmarshal([]byte(gallery.String), &u.AvatarGallery); err != nil {
			return nil, fmt.Errorf("decode avatar gallery: %w", err)
		}
	}
	return u, nil
}

func marshalGallery(gallery []string) (sql.NullString, error) {
	if len(gallery) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(gallery)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode avatar gallery: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
