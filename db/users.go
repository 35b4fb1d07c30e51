package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/EO-DataHub/eodhp-directory-services/models"
)

const userColumns = `id, username, domain, uid, first_name, last_name, shell, home_dir,
	email, ssh_public_key, password, type, active`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Domain, &u.UID, &u.FirstName, &u.LastName,
		&u.Shell, &u.HomeDir, &u.Email, &u.SSHPublicKey, &u.Password, &u.Type, &u.Active)
	return u, err
}

func (t *dirTx) GetUser(ctx context.Context, username, domain string) (*models.User, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users
		WHERE username = $1 AND domain = $2`, username, domain)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "error retrieving user %s", username)
	}
	return &u, nil
}

func (t *dirTx) ListUsers(ctx context.Context, domain string) ([]models.User, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+userColumns+` FROM users
		WHERE ($1::text = '' OR domain = $1)
		ORDER BY domain, username`, domain)
	if err != nil {
		return nil, translate(err, "error retrieving users")
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, translate(err, "error scanning user")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "error iterating users")
	}
	return users, nil
}

func (t *dirTx) UIDs(ctx context.Context, domain string) ([]int, error) {
	return t.ids(ctx, `SELECT uid FROM users WHERE domain = $1`, domain)
}

func (t *dirTx) ids(ctx context.Context, query, domain string) ([]int, error) {
	rows, err := t.tx.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, translate(err, "error retrieving identifiers for domain %s", domain)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, translate(err, "error scanning identifier")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "error iterating identifiers")
	}
	return ids, nil
}

func (t *dirTx) InsertUser(ctx context.Context, u *models.User) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO users (username, domain, uid, first_name, last_name, shell, home_dir,
			email, ssh_public_key, password, type, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		u.Username, u.Domain, u.UID, u.FirstName, u.LastName, u.Shell, u.HomeDir,
		u.Email, u.SSHPublicKey, u.Password, u.Type, u.Active).Scan(&u.ID)
	if err != nil {
		return translate(err, "error inserting user %s", u.Username)
	}
	return nil
}

func (t *dirTx) UpdateUser(ctx context.Context, u *models.User) error {
	_, err := t.execQuery(ctx, `
		UPDATE users SET uid = $2, first_name = $3, last_name = $4, shell = $5,
			home_dir = $6, email = $7, ssh_public_key = $8, password = $9, type = $10, active = $11
		WHERE id = $1`,
		u.ID, u.UID, u.FirstName, u.LastName, u.Shell, u.HomeDir, u.Email,
		u.SSHPublicKey, u.Password, u.Type, u.Active)
	if err != nil {
		return translate(err, "error updating user %s", u.Username)
	}
	return nil
}

func (t *dirTx) DeleteUser(ctx context.Context, id int64) error {
	if _, err := t.execQuery(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return translate(err, "error deleting user")
	}
	return nil
}
