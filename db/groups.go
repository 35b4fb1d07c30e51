package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/EO-DataHub/eodhp-directory-services/models"
	"github.com/lib/pq"
)

const groupSelect = `
	SELECT g.id, g.groupname, g.domain, g.gid, g.description,
		COALESCE(array_agg(s.sudocommand ORDER BY s.id) FILTER (WHERE s.sudocommand IS NOT NULL), '{}')
	FROM groups g
	LEFT JOIN group_sudocommand_mapping s ON s.groups_id = g.id`

func scanGroup(row scanner) (models.Group, error) {
	var g models.Group
	var cmds []string
	err := row.Scan(&g.ID, &g.Groupname, &g.Domain, &g.GID, &g.Description, pq.Array(&cmds))
	if len(cmds) > 0 {
		g.SudoCmds = cmds
	}
	return g, err
}

func (t *dirTx) GetGroup(ctx context.Context, groupname, domain string) (*models.Group, error) {
	row := t.tx.QueryRowContext(ctx, groupSelect+`
		WHERE g.groupname = $1 AND g.domain = $2
		GROUP BY g.id`, groupname, domain)

	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "error retrieving group %s", groupname)
	}
	return &g, nil
}

func (t *dirTx) ListGroups(ctx context.Context, domain string) ([]models.Group, error) {
	rows, err := t.tx.QueryContext(ctx, groupSelect+`
		WHERE ($1::text = '' OR g.domain = $1)
		GROUP BY g.id
		ORDER BY g.domain, g.groupname`, domain)
	if err != nil {
		return nil, translate(err, "error retrieving groups")
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

func (t *dirTx) GIDs(ctx context.Context, domain string) ([]int, error) {
	return t.ids(ctx, `SELECT gid FROM groups WHERE domain = $1`, domain)
}

func (t *dirTx) InsertGroup(ctx context.Context, g *models.Group) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO groups (groupname, domain, gid, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		g.Groupname, g.Domain, g.GID, g.Description).Scan(&g.ID)
	if err != nil {
		return translate(err, "error inserting group %s", g.Groupname)
	}
	return t.insertSudoCmds(ctx, g)
}

// UpdateGroup rewrites the group row and replaces its whole sudo command set.
func (t *dirTx) UpdateGroup(ctx context.Context, g *models.Group) error {
	_, err := t.execQuery(ctx, `
		UPDATE groups SET gid = $2, description = $3
		WHERE id = $1`, g.ID, g.GID, g.Description)
	if err != nil {
		return translate(err, "error updating group %s", g.Groupname)
	}

	if _, err := t.execQuery(ctx, `DELETE FROM group_sudocommand_mapping WHERE groups_id = $1`, g.ID); err != nil {
		return translate(err, "error clearing sudo commands of group %s", g.Groupname)
	}
	return t.insertSudoCmds(ctx, g)
}

func (t *dirTx) insertSudoCmds(ctx context.Context, g *models.Group) error {
	if len(g.SudoCmds) == 0 {
		return nil
	}
	_, err := t.execQuery(ctx, `
		INSERT INTO group_sudocommand_mapping (groups_id, sudocommand)
		SELECT $1, cmd FROM unnest($2::text[]) WITH ORDINALITY AS c(cmd, ord)
		ORDER BY ord`, g.ID, pq.Array(g.SudoCmds))
	if err != nil {
		return translate(err, "error inserting sudo commands of group %s", g.Groupname)
	}
	return nil
}

func (t *dirTx) DeleteGroup(ctx context.Context, id int64) error {
	if _, err := t.execQuery(ctx, `DELETE FROM groups WHERE id = $1`, id); err != nil {
		return translate(err, "error deleting group")
	}
	return nil
}
