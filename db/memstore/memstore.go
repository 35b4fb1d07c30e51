// Package memstore is a directory.Store kept entirely in memory. Write
// transactions are serialised by go-memdb, which also serialises id
// allocation.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/EO-DataHub/eodhp-directory-services/models"
	memdb "github.com/hashicorp/go-memdb"
)

const (
	tableUsers       = "users"
	tableGroups      = "groups"
	tableMemberships = "memberships"

	indexID     = "id"
	indexName   = "name"
	indexDomain = "domain"
	indexUser   = "user"
	indexGroup  = "group"
	indexPair   = "pair"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableUsers: {
				Name: tableUsers,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {Name: indexID, Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}},
					indexName: {Name: indexName, Unique: true, Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Username"},
							&memdb.StringFieldIndex{Field: "Domain"},
						},
					}},
					indexDomain: {Name: indexDomain, Indexer: &memdb.StringFieldIndex{Field: "Domain"}},
				},
			},
			tableGroups: {
				Name: tableGroups,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {Name: indexID, Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}},
					indexName: {Name: indexName, Unique: true, Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Groupname"},
							&memdb.StringFieldIndex{Field: "Domain"},
						},
					}},
					indexDomain: {Name: indexDomain, Indexer: &memdb.StringFieldIndex{Field: "Domain"}},
				},
			},
			tableMemberships: {
				Name: tableMemberships,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:    {Name: indexID, Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}},
					indexUser:  {Name: indexUser, Indexer: &memdb.IntFieldIndex{Field: "UserID"}},
					indexGroup: {Name: indexGroup, Indexer: &memdb.IntFieldIndex{Field: "GroupID"}},
					indexPair: {Name: indexPair, Unique: true, Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "UserID"},
							&memdb.IntFieldIndex{Field: "GroupID"},
						},
					}},
				},
			},
		},
	}
}

type Store struct {
	db     *memdb.MemDB
	nextID int64
}

// New creates an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("error creating in-memory database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Begin(ctx context.Context) (directory.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{store: s, txn: s.db.Txn(true)}, nil
}

type tx struct {
	store *Store
	txn   *memdb.Txn
}

func (t *tx) id() int64 {
	return atomic.AddInt64(&t.store.nextID, 1)
}

func (t *tx) Commit() error {
	t.txn.Commit()
	return nil
}

func (t *tx) Rollback() error {
	t.txn.Abort()
	return nil
}

// LockIDs is a no-op: go-memdb allows a single writer at a time.
func (t *tx) LockIDs(context.Context, directory.IDKind, string) error {
	return nil
}

func (t *tx) GetUser(_ context.Context, username, domain string) (*models.User, error) {
	raw, err := t.txn.First(tableUsers, indexName, username, domain)
	if err != nil {
		return nil, fmt.Errorf("error retrieving user: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	u := *raw.(*models.User)
	return &u, nil
}

func (t *tx) ListUsers(_ context.Context, domain string) ([]models.User, error) {
	users, err := t.users(domain)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Domain != users[j].Domain {
			return users[i].Domain < users[j].Domain
		}
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (t *tx) users(domain string) ([]models.User, error) {
	var (
		it  memdb.ResultIterator
		err error
	)
	if domain == "" {
		it, err = t.txn.Get(tableUsers, indexID)
	} else {
		it, err = t.txn.Get(tableUsers, indexDomain, domain)
	}
	if err != nil {
		return nil, fmt.Errorf("error retrieving users: %w", err)
	}

	var users []models.User
	for obj := it.Next(); obj != nil; obj = it.Next() {
		users = append(users, *obj.(*models.User))
	}
	return users, nil
}

func (t *tx) UIDs(_ context.Context, domain string) ([]int, error) {
	users, err := t.users(domain)
	if err != nil {
		return nil, err
	}
	uids := make([]int, 0, len(users))
	for _, u := range users {
		uids = append(uids, u.UID)
	}
	return uids, nil
}

func (t *tx) InsertUser(ctx context.Context, user *models.User) error {
	if existing, err := t.GetUser(ctx, user.Username, user.Domain); err != nil {
		return err
	} else if existing != nil {
		return directory.NewError(directory.KindConflict, "user %s already exists in domain %s", user.Username, user.Domain)
	}
	if err := t.checkUID(user); err != nil {
		return err
	}

	user.ID = t.id()
	u := *user
	if err := t.txn.Insert(tableUsers, &u); err != nil {
		return fmt.Errorf("error inserting user: %w", err)
	}
	return nil
}

func (t *tx) UpdateUser(_ context.Context, user *models.User) error {
	raw, err := t.txn.First(tableUsers, indexID, user.ID)
	if err != nil {
		return fmt.Errorf("error retrieving user: %w", err)
	}
	if raw == nil {
		return directory.NewError(directory.KindNotFound, "user %d does not exist", user.ID)
	}
	if err := t.checkUID(user); err != nil {
		return err
	}

	u := *user
	if err := t.txn.Insert(tableUsers, &u); err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}
	return nil
}

// checkUID enforces one uid per domain.
func (t *tx) checkUID(user *models.User) error {
	users, err := t.users(user.Domain)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.UID == user.UID && u.ID != user.ID {
			return directory.NewError(directory.KindConflict, "uid %d is already in use in domain %s", user.UID, user.Domain)
		}
	}
	return nil
}

func (t *tx) DeleteUser(_ context.Context, id int64) error {
	raw, err := t.txn.First(tableUsers, indexID, id)
	if err != nil {
		return fmt.Errorf("error retrieving user: %w", err)
	}
	if raw == nil {
		return directory.NewError(directory.KindNotFound, "user %d does not exist", id)
	}

	member, err := t.txn.First(tableMemberships, indexUser, id)
	if err != nil {
		return fmt.Errorf("error retrieving memberships: %w", err)
	}
	if member != nil {
		return directory.NewError(directory.KindInUse, "user %d still has memberships", id)
	}

	if err := t.txn.Delete(tableUsers, raw); err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	return nil
}

func (t *tx) GetGroup(_ context.Context, groupname, domain string) (*models.Group, error) {
	raw, err := t.txn.First(tableGroups, indexName, groupname, domain)
	if err != nil {
		return nil, fmt.Errorf("error retrieving group: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return copyGroup(raw.(*models.Group)), nil
}

func (t *tx) ListGroups(_ context.Context, domain string) ([]models.Group, error) {
	groups, err := t.groups(domain)
	if err != nil {
		return nil, err
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Domain != groups[j].Domain {
			return groups[i].Domain < groups[j].Domain
		}
		return groups[i].Groupname < groups[j].Groupname
	})
	return groups, nil
}

func (t *tx) groups(domain string) ([]models.Group, error) {
	var (
		it  memdb.ResultIterator
		err error
	)
	if domain == "" {
		it, err = t.txn.Get(tableGroups, indexID)
	} else {
		it, err = t.txn.Get(tableGroups, indexDomain, domain)
	}
	if err != nil {
		return nil, fmt.Errorf("error retrieving groups: %w", err)
	}

	var groups []models.Group
	for obj := it.Next(); obj != nil; obj = it.Next() {
		groups = append(groups, *copyGroup(obj.(*models.Group)))
	}
	return groups, nil
}

func (t *tx) GIDs(_ context.Context, domain string) ([]int, error) {
	groups, err := t.groups(domain)
	if err != nil {
		return nil, err
	}
	gids := make([]int, 0, len(groups))
	for _, g := range groups {
		gids = append(gids, g.GID)
	}
	return gids, nil
}

func (t *tx) InsertGroup(ctx context.Context, group *models.Group) error {
	if existing, err := t.GetGroup(ctx, group.Groupname, group.Domain); err != nil {
		return err
	} else if existing != nil {
		return directory.NewError(directory.KindConflict, "group %s already exists in domain %s", group.Groupname, group.Domain)
	}
	if err := t.checkGID(group); err != nil {
		return err
	}

	group.ID = t.id()
	if err := t.txn.Insert(tableGroups, copyGroup(group)); err != nil {
		return fmt.Errorf("error inserting group: %w", err)
	}
	return nil
}

func (t *tx) UpdateGroup(_ context.Context, group *models.Group) error {
	raw, err := t.txn.First(tableGroups, indexID, group.ID)
	if err != nil {
		return fmt.Errorf("error retrieving group: %w", err)
	}
	if raw == nil {
		return directory.NewError(directory.KindNotFound, "group %d does not exist", group.ID)
	}
	if err := t.checkGID(group); err != nil {
		return err
	}

	if err := t.txn.Insert(tableGroups, copyGroup(group)); err != nil {
		return fmt.Errorf("error updating group: %w", err)
	}
	return nil
}

// checkGID enforces one gid per domain.
func (t *tx) checkGID(group *models.Group) error {
	groups, err := t.groups(group.Domain)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.GID == group.GID && g.ID != group.ID {
			return directory.NewError(directory.KindConflict, "gid %d is already in use in domain %s", group.GID, group.Domain)
		}
	}
	return nil
}

func (t *tx) DeleteGroup(_ context.Context, id int64) error {
	raw, err := t.txn.First(tableGroups, indexID, id)
	if err != nil {
		return fmt.Errorf("error retrieving group: %w", err)
	}
	if raw == nil {
		return directory.NewError(directory.KindNotFound, "group %d does not exist", id)
	}

	member, err := t.txn.First(tableMemberships, indexGroup, id)
	if err != nil {
		return fmt.Errorf("error retrieving memberships: %w", err)
	}
	if member != nil {
		return directory.NewError(directory.KindInUse, "group %d still has members", id)
	}

	if err := t.txn.Delete(tableGroups, raw); err != nil {
		return fmt.Errorf("error deleting group: %w", err)
	}
	return nil
}

func (t *tx) GetMembership(_ context.Context, userID, groupID int64) (*models.Membership, error) {
	raw, err := t.txn.First(tableMemberships, indexPair, userID, groupID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving membership: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	m := *raw.(*models.Membership)
	return &m, nil
}

func (t *tx) InsertMembership(ctx context.Context, membership *models.Membership) error {
	if u, err := t.txn.First(tableUsers, indexID, membership.UserID); err != nil || u == nil {
		return directory.NewError(directory.KindNotFound, "user %d does not exist", membership.UserID)
	}
	if g, err := t.txn.First(tableGroups, indexID, membership.GroupID); err != nil || g == nil {
		return directory.NewError(directory.KindNotFound, "group %d does not exist", membership.GroupID)
	}
	if existing, err := t.GetMembership(ctx, membership.UserID, membership.GroupID); err != nil {
		return err
	} else if existing != nil {
		return directory.NewError(directory.KindConflict, "membership already exists")
	}

	membership.ID = t.id()
	m := *membership
	if err := t.txn.Insert(tableMemberships, &m); err != nil {
		return fmt.Errorf("error inserting membership: %w", err)
	}
	return nil
}

func (t *tx) DeleteMembership(_ context.Context, id int64) error {
	raw, err := t.txn.First(tableMemberships, indexID, id)
	if err != nil {
		return fmt.Errorf("error retrieving membership: %w", err)
	}
	if raw == nil {
		return directory.NewError(directory.KindNotFound, "membership %d does not exist", id)
	}
	if err := t.txn.Delete(tableMemberships, raw); err != nil {
		return fmt.Errorf("error deleting membership: %w", err)
	}
	return nil
}

func (t *tx) GroupsOfUser(_ context.Context, userID int64) ([]models.Group, error) {
	it, err := t.txn.Get(tableMemberships, indexUser, userID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving memberships: %w", err)
	}

	var groups []models.Group
	for obj := it.Next(); obj != nil; obj = it.Next() {
		m := obj.(*models.Membership)
		raw, err := t.txn.First(tableGroups, indexID, m.GroupID)
		if err != nil {
			return nil, fmt.Errorf("error retrieving group: %w", err)
		}
		if raw != nil {
			groups = append(groups, *copyGroup(raw.(*models.Group)))
		}
	}
	return groups, nil
}

func (t *tx) MembersOfGroup(_ context.Context, groupID int64) ([]models.User, error) {
	it, err := t.txn.Get(tableMemberships, indexGroup, groupID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving memberships: %w", err)
	}

	var users []models.User
	for obj := it.Next(); obj != nil; obj = it.Next() {
		m := obj.(*models.Membership)
		raw, err := t.txn.First(tableUsers, indexID, m.UserID)
		if err != nil {
			return nil, fmt.Errorf("error retrieving user: %w", err)
		}
		if raw != nil {
			users = append(users, *raw.(*models.User))
		}
	}
	return users, nil
}

func copyGroup(g *models.Group) *models.Group {
	c := *g
	c.SudoCmds = append([]string(nil), g.SudoCmds...)
	return &c
}
