package directory_test

import (
	"context"
	"testing"

	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/EO-DataHub/eodhp-directory-services/internal/events"
	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserAddAllocatesSequentialUIDs(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "bob")))

	alice, err := svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.Equal(t, 500, alice.User.UID)

	bob, err := svc.UserDisplay(ctx, q("username", "bob"))
	require.NoError(t, err)
	assert.Equal(t, 501, bob.User.UID)
}

func TestUserAddThenDisplayReturnsDefaults(t *testing.T) {
	svc, rec := newTestService(t, testConfig())
	ctx := context.Background()

	err := svc.UserAdd(ctx, q("username", "alice", "domain", "example.com", "first_name", "Alice", "shell", "/bin/zsh"))
	require.NoError(t, err)

	got, err := svc.UserDisplay(ctx, q("username", "alice", "domain", "example.com"))
	require.NoError(t, err)

	u := got.User
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "example.com", u.Domain)
	assert.Equal(t, "Alice", u.FirstName)
	assert.Equal(t, "Doe", u.LastName)
	assert.Equal(t, "/bin/zsh", u.Shell)
	assert.Equal(t, "/home/alice", u.HomeDir)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "employee", u.Type)
	assert.True(t, u.Active)
	assert.Empty(t, got.Groups)

	changes := rec.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, events.EntityUser, changes[0].Entity)
	assert.Equal(t, events.ActionCreate, changes[0].Action)
	assert.Equal(t, "alice", changes[0].Name)
}

func TestUserAddDuplicateIsConflict(t *testing.T) {
	svc, rec := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))
	err := svc.UserAdd(ctx, q("username", "alice", "first_name", "Other"))
	require.Error(t, err)
	assert.True(t, directory.IsKind(err, directory.KindConflict))
	assert.Contains(t, err.Error(), "userdata/uadd")
	assert.Contains(t, err.Error(), "already exists")

	// The store is unchanged
	got, err := svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "John", got.User.FirstName)
	assert.Len(t, rec.Changes(), 1)

	// The same name in another domain is fine
	assert.NoError(t, svc.UserAdd(ctx, q("username", "alice", "domain", "other.org")))
}

func TestUserAddExplicitUID(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.UserAdd(ctx, q("username", "alice", "uid", "550")))

	err := svc.UserAdd(ctx, q("username", "bob", "uid", "550"))
	assert.True(t, directory.IsKind(err, directory.KindConflict), "uid in use: %v", err)

	err = svc.UserAdd(ctx, q("username", "bob", "uid", "601"))
	assert.True(t, directory.IsKind(err, directory.KindValidation), "out of range: %v", err)

	err = svc.UserAdd(ctx, q("username", "bob", "uid", "abc"))
	assert.True(t, directory.IsKind(err, directory.KindValidation), "not an integer: %v", err)

	// Allocation fills the lowest gap
	require.NoError(t, svc.UserAdd(ctx, q("username", "bob")))
	bob, err := svc.UserDisplay(ctx, q("username", "bob"))
	require.NoError(t, err)
	assert.Equal(t, 500, bob.User.UID)
}

func TestUserAddRangeExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.UIDEnd = 501
	svc, _ := newTestService(t, cfg)
	ctx := context.Background()

	require.NoError(t, svc.UserAdd(ctx, q("username", "a")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "b")))
	err := svc.UserAdd(ctx, q("username", "c"))
	require.Error(t, err)
	assert.True(t, directory.IsKind(err, directory.KindConflict))
	assert.Contains(t, err.Error(), "no identifiers available")
}

func TestUserAddValidation(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		kind directory.Kind
	}{
		{"bad username", svc.UserAdd(ctx, q("username", "al ice")), directory.KindValidation},
		{"bad domain", svc.UserAdd(ctx, q("username", "alice", "domain", "bad..domain")), directory.KindValidation},
		{"bad user type", svc.UserAdd(ctx, q("username", "alice", "user_type", "robot")), directory.KindValidation},
		{"bad first name", svc.UserAdd(ctx, q("username", "alice", "first_name", "A!")), directory.KindValidation},
		{"unknown argument", svc.UserAdd(ctx, q("username", "alice", "colour", "red")), directory.KindMalformed},
		{"missing username", svc.UserAdd(ctx, q("domain", "example.com")), directory.KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.Equal(t, tt.kind, directory.KindOf(tt.err))
		})
	}

	_, err := svc.UserDisplay(ctx, q("username", "alice"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound))
}

func TestUserAddDefaultGroups(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultGroups = []string{"users"}
	svc, _ := newTestService(t, cfg)
	ctx := context.Background()

	// The default group must exist first
	err := svc.UserAdd(ctx, q("username", "alice"))
	require.Error(t, err)
	assert.True(t, directory.IsKind(err, directory.KindNotFound))
	assert.Contains(t, err.Error(), "default group users")

	_, err = svc.UserDisplay(ctx, q("username", "alice"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound), "failed add must not leave a user behind")

	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "users")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))

	got, err := svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, got.Groups)
}

func TestUserAddSSHKeys(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	rsa := sshKey("ssh-rsa", "ssh-rsa") + " alice@laptop"
	dss := sshKey("ssh-dss", "ssh-dss")
	err := svc.UserAdd(ctx, withFile(q("username", "alice"), rsa+"\n\n"+dss+"\n"))
	require.NoError(t, err)

	got, err := svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.Equal(t, rsa+"\n"+dss, got.User.SSHPublicKey)

	// Prefix matches but the embedded algorithm does not
	err = svc.UserAdd(ctx, withFile(q("username", "bob"), sshKey("ssh-rsa", "ssh-dss")))
	assert.True(t, directory.IsKind(err, directory.KindValidation), "%v", err)

	err = svc.UserAdd(ctx, withFile(q("username", "bob"), "ecdsa-sha2-nistp256 AAAA"))
	assert.True(t, directory.IsKind(err, directory.KindValidation), "%v", err)
}

func TestUserAddPasswordIsHashed(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.UserAdd(ctx, q("username", "alice", "password", "s3cret")))

	got, err := svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", got.User.Password)
	assert.True(t, directory.CheckPassword("s3cret", got.User.Password))
}

func TestUserModify(t *testing.T) {
	svc, rec := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "bob")))

	err := svc.UserModify(ctx, q("username", "alice", "last_name", "Smith", "active", "f"))
	require.NoError(t, err)

	got, err := svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "Smith", got.User.LastName)
	assert.Equal(t, "John", got.User.FirstName, "untouched fields keep their value")
	assert.False(t, got.User.Active)

	// Unrecognised active values leave the flag alone
	require.NoError(t, svc.UserModify(ctx, q("username", "alice", "active", "maybe")))
	got, err = svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.False(t, got.User.Active)

	require.NoError(t, svc.UserModify(ctx, q("username", "alice", "active", "True")))
	got, err = svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.True(t, got.User.Active)

	// uid changes are checked for range and uniqueness
	err = svc.UserModify(ctx, q("username", "alice", "uid", "501"))
	assert.True(t, directory.IsKind(err, directory.KindConflict), "%v", err)
	err = svc.UserModify(ctx, q("username", "alice", "uid", "10"))
	assert.True(t, directory.IsKind(err, directory.KindValidation), "%v", err)
	require.NoError(t, svc.UserModify(ctx, q("username", "alice", "uid", "590")))
	got, err = svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.Equal(t, 590, got.User.UID)

	// At least one optional argument is required
	err = svc.UserModify(ctx, q("username", "alice"))
	assert.True(t, directory.IsKind(err, directory.KindMalformed), "%v", err)

	err = svc.UserModify(ctx, q("username", "nobody", "shell", "/bin/sh"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound), "%v", err)

	updates := 0
	for _, c := range rec.Changes() {
		if c.Action == events.ActionUpdate {
			updates++
		}
	}
	assert.Equal(t, 4, updates)
}

func TestUserDeleteRejectsMembers(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))
	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops")))
	require.NoError(t, svc.UserToGroup(ctx, q("username", "alice", "groupname", "ops")))

	err := svc.UserDelete(ctx, q("username", "alice"))
	require.Error(t, err)
	assert.True(t, directory.IsKind(err, directory.KindInUse))
	assert.True(t, directory.IsReferential(err))
	assert.Contains(t, err.Error(), "ops")

	require.NoError(t, svc.UserRemoveGroup(ctx, q("username", "alice", "groupname", "ops")))
	require.NoError(t, svc.UserDelete(ctx, q("username", "alice")))

	_, err = svc.UserDisplay(ctx, q("username", "alice"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound))

	err = svc.UserDelete(ctx, q("username", "alice"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound))
}

func TestUserClone(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	key := sshKey("ssh-rsa", "ssh-rsa")
	require.NoError(t, svc.UserAdd(ctx, withFile(q("username", "alice", "uid", "520", "password", "pw", "last_name", "Liddell"), key)))

	require.NoError(t, svc.UserClone(ctx, q("username", "alice", "domain", "example.com", "newdomain", "other.org")))

	got, err := svc.UserDisplay(ctx, q("username", "alice", "domain", "other.org"))
	require.NoError(t, err)
	assert.Equal(t, 520, got.User.UID)
	assert.Equal(t, "Liddell", got.User.LastName)
	assert.Equal(t, key, got.User.SSHPublicKey)
	assert.Empty(t, got.User.Password, "password is not carried over")

	// Cloning again collides on the natural key
	err = svc.UserClone(ctx, q("username", "alice", "domain", "example.com", "newdomain", "other.org"))
	assert.True(t, directory.IsKind(err, directory.KindConflict))

	// uid collision in the target domain
	require.NoError(t, svc.UserAdd(ctx, q("username", "carol", "domain", "third.net", "uid", "520")))
	err = svc.UserClone(ctx, q("username", "alice", "domain", "example.com", "newdomain", "third.net"))
	assert.True(t, directory.IsKind(err, directory.KindConflict))

	err = svc.UserClone(ctx, q("username", "nobody", "domain", "example.com", "newdomain", "other.org"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound))
}

func TestListUsers(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	_, err := svc.ListUsers(ctx, q())
	assert.True(t, directory.IsKind(err, directory.KindNotFound), "empty listing is an error")

	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "bob", "domain", "other.org")))
	require.NoError(t, svc.UserModify(ctx, q("username", "bob", "domain", "other.org", "active", "false")))

	all, err := svc.ListUsers(ctx, q())
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"example.com": {"alice uid:500 active"},
		"other.org":   {"bob uid:500 inactive"},
	}, all)

	one, err := svc.ListUsers(ctx, q("domain", "other.org"))
	require.NoError(t, err)
	assert.Len(t, one, 1)
	assert.Contains(t, one, "other.org")
}

func TestHandleDispatchesOperations(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	out, err := svc.Handle(ctx, 1000, q())
	assert.Nil(t, out)
	assert.True(t, directory.IsKind(err, directory.KindMalformed))
}

func TestUserEmptyOptionalFieldsAreIgnored(t *testing.T) {
	fields := []string{"first_name", "last_name", "shell", "email_address", "home_dir", "user_type", "active", "password", "uid"}

	for _, field := range fields {
		t.Run(field, func(t *testing.T) {
			svc, _ := newTestService(t, testConfig())
			ctx := context.Background()

			// active is only accepted by umodify
			add := q("username", "alice", field, "")
			if field == "active" {
				add = q("username", "alice")
			}
			require.NoError(t, svc.UserAdd(ctx, add))
			added, err := svc.UserDisplay(ctx, q("username", "alice"))
			require.NoError(t, err)
			u := added.User
			assert.Equal(t, 500, u.UID)
			assert.Equal(t, "John", u.FirstName)
			assert.Equal(t, "Doe", u.LastName)
			assert.Equal(t, "/bin/bash", u.Shell)
			assert.Equal(t, "/home/alice", u.HomeDir)
			assert.Equal(t, "alice@example.com", u.Email)
			assert.Equal(t, "employee", u.Type)
			assert.True(t, u.Active)
			assert.Empty(t, u.Password)

			require.NoError(t, svc.UserAdd(ctx, q("username", "bob", "uid", "520", "first_name", "Bob",
				"last_name", "Builder", "shell", "/bin/zsh", "email_address", "bob@other.org",
				"home_dir", "/srv/bob", "user_type", "consultant", "password", "pw")))
			require.NoError(t, svc.UserModify(ctx, q("username", "bob", "active", "f")))
			before, err := svc.UserDisplay(ctx, q("username", "bob"))
			require.NoError(t, err)

			require.NoError(t, svc.UserModify(ctx, q("username", "bob", field, "")))
			after, err := svc.UserDisplay(ctx, q("username", "bob"))
			require.NoError(t, err)
			assert.Equal(t, before.User, after.User)
		})
	}
}

func TestUserOperationsValidateDomain(t *testing.T) {
	svc, rec := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))
	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops")))
	created := len(rec.Changes())

	display := func(c metadata.Call) error {
		_, err := svc.UserDisplay(ctx, c)
		return err
	}
	tests := []struct {
		name string
		run  func(metadata.Call) error
		call metadata.Call
	}{
		{"umodify", func(c metadata.Call) error { return svc.UserModify(ctx, c) }, q("username", "alice", "domain", "bad domain!", "shell", "/bin/sh")},
		{"udelete", func(c metadata.Call) error { return svc.UserDelete(ctx, c) }, q("username", "alice", "domain", "bad domain!")},
		{"udisplay", display, q("username", "alice", "domain", "bad domain!")},
		{"uclone", func(c metadata.Call) error { return svc.UserClone(ctx, c) }, q("username", "alice", "domain", "bad domain!", "newdomain", "other.org")},
		{"utog", func(c metadata.Call) error { return svc.UserToGroup(ctx, c) }, q("username", "alice", "groupname", "ops", "domain", "bad domain!")},
		{"urmg", func(c metadata.Call) error { return svc.UserRemoveGroup(ctx, c) }, q("username", "alice", "groupname", "ops", "domain", "bad domain!")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(tt.call)
			require.Error(t, err)
			assert.Equal(t, directory.KindValidation, directory.KindOf(err), "%v", err)
			assert.Contains(t, err.Error(), "userdata/"+tt.name)
		})
	}
	assert.Len(t, rec.Changes(), created)
}
