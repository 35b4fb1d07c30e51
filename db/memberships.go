package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/EO-DataHub/eodhp-directory-services/models"
)

func (t *dirTx) GetMembership(ctx context.Context, userID, groupID int64) (*models.Membership, error) {
	var m models.Membership
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, users_id, groups_id FROM user_group_mapping
		WHERE users_id = $1 AND groups_id = $2`, userID, groupID).Scan(&m.ID, &m.UserID, &m.GroupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "error retrieving membership")
	}
	return &m, nil
}

func (t *dirTx) InsertMembership(ctx context.Context, m *models.Membership) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO user_group_mapping (users_id, groups_id)
		VALUES ($1, $2)
		RETURNING id`, m.UserID, m.GroupID).Scan(&m.ID)
	if err != nil {
		return translate(err, "error inserting membership")
	}
	return nil
}

func (t *dirTx) DeleteMembership(ctx context.Context, id int64) error {
	if _, err := t.execQuery(ctx, `DELETE FROM user_group_mapping WHERE id = $1`, id); err != nil {
		return translate(err, "error deleting membership")
	}
	return nil
}

func (t *dirTx) GroupsOfUser(ctx context.Context, userID int64) ([]models.Group, error) {
	rows, err := t.tx.QueryContext(ctx, groupSelect+`
		JOIN user_group_mapping m ON m.groups_id = g.id
		WHERE m.users_id = $1
		GROUP BY g.id
		ORDER BY g.groupname`, userID)
	if err != nil {
		return nil, translate(err, "error retrieving groups of user")
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, translate(err, "error scanning group")
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "error iterating groups")
	}
	return groups, nil
}

func (t *dirTx) MembersOfGroup(ctx context.Context, groupID int64) ([]models.User, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT u.id, u.username, u.domain, u.uid, u.first_name,
			u.last_name, u.shell, u.home_dir, u.email, u.ssh_public_key, u.password, u.type, u.active
		FROM users u
		JOIN user_group_mapping m ON m.users_id = u.id
		WHERE m.groups_id = $1
		ORDER BY u.username`, groupID)
	if err != nil {
		return nil, translate(err, "error retrieving members of group")
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
