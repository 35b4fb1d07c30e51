package directory

import (
	"context"

	"github.com/EO-DataHub/eodhp-directory-services/models"
)

// IDKind names an identifier space.
type IDKind string

const (
	UIDKind IDKind = "uid"
	GIDKind IDKind = "gid"
)

// Store opens transactions against the relational backend.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single unit of work. Lookups return nil without an error when the
// entry does not exist.
type Tx interface {
	Commit() error
	Rollback() error

	// LockIDs serialises identifier allocation for the domain until the
	// transaction ends.
	LockIDs(ctx context.Context, kind IDKind, domain string) error

	GetUser(ctx context.Context, username, domain string) (*models.User, error)
	ListUsers(ctx context.Context, domain string) ([]models.User, error)
	UIDs(ctx context.Context, domain string) ([]int, error)
	InsertUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id int64) error

	GetGroup(ctx context.Context, groupname, domain string) (*models.Group, error)
	ListGroups(ctx context.Context, domain string) ([]models.Group, error)
	GIDs(ctx context.Context, domain string) ([]int, error)
	InsertGroup(ctx context.Context, group *models.Group) error
	UpdateGroup(ctx context.Context, group *models.Group) error
	DeleteGroup(ctx context.Context, id int64) error

	GetMembership(ctx context.Context, userID, groupID int64) (*models.Membership, error)
	InsertMembership(ctx context.Context, membership *models.Membership) error
	DeleteMembership(ctx context.Context, id int64) error
	GroupsOfUser(ctx context.Context, userID int64) ([]models.Group, error)
	MembersOfGroup(ctx context.Context, groupID int64) ([]models.User, error)
}
