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

func TestGroupAddDefaultsAndAllocation(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops")))
	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "dev", "description", "developers", "sudo_cmds", "all")))

	ops, err := svc.GroupDisplay(ctx, q("groupname", "ops"))
	require.NoError(t, err)
	assert.Equal(t, 500, ops.Group.GID)
	assert.Equal(t, "Please add a description for this group!", ops.Group.Description)
	assert.Empty(t, ops.Group.SudoCmds)
	assert.Empty(t, ops.Members)

	dev, err := svc.GroupDisplay(ctx, q("groupname", "dev", "domain", "example.com"))
	require.NoError(t, err)
	assert.Equal(t, 501, dev.Group.GID)
	assert.Equal(t, "developers", dev.Group.Description)
	assert.Equal(t, []string{"ALL"}, dev.Group.SudoCmds)
}

func TestGroupAddConflicts(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops", "gid", "510")))

	err := svc.GroupAdd(ctx, q("groupname", "ops"))
	assert.True(t, directory.IsKind(err, directory.KindConflict), "%v", err)
	assert.Contains(t, err.Error(), "userdata/gadd")

	err = svc.GroupAdd(ctx, q("groupname", "dev", "gid", "510"))
	assert.True(t, directory.IsKind(err, directory.KindConflict), "%v", err)

	err = svc.GroupAdd(ctx, q("groupname", "dev", "gid", "9999"))
	assert.True(t, directory.IsKind(err, directory.KindValidation), "%v", err)

	err = svc.GroupAdd(ctx, q("groupname", "d/ev"))
	assert.True(t, directory.IsKind(err, directory.KindValidation), "%v", err)

	groups, err := svc.ListGroups(ctx, q())
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"example.com": {"ops gid:510"}}, groups)
}

func TestGroupModifySudoFullReplacement(t *testing.T) {
	svc, rec := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "g", "sudo_cmds", "/bin/ls,/bin/cat")))

	got, err := svc.GroupDisplay(ctx, q("groupname", "g"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/ls", "/bin/cat"}, got.Group.SudoCmds)

	require.NoError(t, svc.GroupModify(ctx, q("groupname", "g", "sudo_cmds", "/bin/ls")))

	got, err = svc.GroupDisplay(ctx, q("groupname", "g"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/ls"}, got.Group.SudoCmds)
	assert.Equal(t, "Please add a description for this group!", got.Group.Description)

	require.NoError(t, svc.GroupModify(ctx, q("groupname", "g", "description", "renamed", "gid", "550")))
	got, err = svc.GroupDisplay(ctx, q("groupname", "g"))
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Group.Description)
	assert.Equal(t, 550, got.Group.GID)
	assert.Equal(t, []string{"/bin/ls"}, got.Group.SudoCmds, "sudo commands are kept when not supplied")

	err = svc.GroupModify(ctx, q("groupname", "g"))
	assert.True(t, directory.IsKind(err, directory.KindMalformed), "%v", err)

	last := rec.Changes()[len(rec.Changes())-1]
	assert.Equal(t, events.EntityGroup, last.Entity)
	assert.Equal(t, events.ActionUpdate, last.Action)
}

func TestGroupDeleteReferentialGuard(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops", "sudo_cmds", "ALL")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "bob")))
	require.NoError(t, svc.UserToGroup(ctx, q("username", "alice", "groupname", "ops")))
	require.NoError(t, svc.UserToGroup(ctx, q("username", "bob", "groupname", "ops")))

	err := svc.GroupDelete(ctx, q("groupname", "ops"))
	require.Error(t, err)
	assert.True(t, directory.IsKind(err, directory.KindInUse))

	// Group and memberships are intact
	got, err := svc.GroupDisplay(ctx, q("groupname", "ops"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.Members)

	require.NoError(t, svc.UserRemoveGroup(ctx, q("username", "alice", "groupname", "ops")))
	require.NoError(t, svc.UserRemoveGroup(ctx, q("username", "bob", "groupname", "ops")))
	require.NoError(t, svc.GroupDelete(ctx, q("groupname", "ops")))

	_, err = svc.GroupDisplay(ctx, q("groupname", "ops"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound))
}

func TestMembershipRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))

	before, err := svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)

	require.NoError(t, svc.UserToGroup(ctx, q("username", "alice", "groupname", "ops")))
	err = svc.UserToGroup(ctx, q("username", "alice", "groupname", "ops"))
	assert.True(t, directory.IsKind(err, directory.KindConflict), "mapping twice: %v", err)

	mapped, err := svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ops"}, mapped.Groups)

	require.NoError(t, svc.UserRemoveGroup(ctx, q("username", "alice", "groupname", "ops")))
	after, err := svc.UserDisplay(ctx, q("username", "alice"))
	require.NoError(t, err)
	assert.Equal(t, before.Groups, after.Groups)

	err = svc.UserRemoveGroup(ctx, q("username", "alice", "groupname", "ops"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound), "%v", err)

	err = svc.UserToGroup(ctx, q("username", "alice", "groupname", "nope"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound), "%v", err)

	// Memberships do not cross domains
	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops", "domain", "other.org")))
	err = svc.UserToGroup(ctx, q("username", "alice", "groupname", "ops", "domain", "other.org"))
	assert.True(t, directory.IsKind(err, directory.KindNotFound), "%v", err)
}

func TestGroupClone(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops", "gid", "555", "sudo_cmds", "/usr/bin/systemctl,all", "description", "operators")))
	require.NoError(t, svc.GroupClone(ctx, q("groupname", "ops", "domain", "example.com", "newdomain", "other.org")))

	got, err := svc.GroupDisplay(ctx, q("groupname", "ops", "domain", "other.org"))
	require.NoError(t, err)
	assert.Equal(t, 555, got.Group.GID)
	assert.Equal(t, "operators", got.Group.Description)
	assert.Equal(t, []string{"/usr/bin/systemctl", "ALL"}, got.Group.SudoCmds)

	err = svc.GroupClone(ctx, q("groupname", "ops", "domain", "example.com", "newdomain", "other.org"))
	assert.True(t, directory.IsKind(err, directory.KindConflict), "%v", err)
}

func TestListGroupsEmpty(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	_, err := svc.ListGroups(context.Background(), q("domain", "example.com"))
	require.Error(t, err)
	assert.True(t, directory.IsKind(err, directory.KindNotFound))
	assert.Contains(t, err.Error(), "list/groups")
}

func TestRefreshPublishesEveryEntry(t *testing.T) {
	svc, rec := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "alice")))
	require.NoError(t, svc.UserAdd(ctx, q("username", "bob", "domain", "other.org")))

	n, err := svc.Refresh(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	refreshes := 0
	for _, c := range rec.Changes() {
		if c.Action == events.ActionRefresh {
			refreshes++
		}
	}
	assert.Equal(t, 3, refreshes)

	n, err = svc.Refresh(ctx, "other.org")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGroupEmptyOptionalFieldsAreIgnored(t *testing.T) {
	for _, field := range []string{"description", "sudo_cmds", "gid"} {
		t.Run(field, func(t *testing.T) {
			svc, _ := newTestService(t, testConfig())
			ctx := context.Background()

			require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops", field, "")))
			added, err := svc.GroupDisplay(ctx, q("groupname", "ops"))
			require.NoError(t, err)
			assert.Equal(t, 500, added.Group.GID)
			assert.Equal(t, "Please add a description for this group!", added.Group.Description)
			assert.Empty(t, added.Group.SudoCmds)

			require.NoError(t, svc.GroupAdd(ctx, q("groupname", "dev", "gid", "550", "description", "developers", "sudo_cmds", "/bin/ls")))
			before, err := svc.GroupDisplay(ctx, q("groupname", "dev"))
			require.NoError(t, err)

			require.NoError(t, svc.GroupModify(ctx, q("groupname", "dev", field, "")))
			after, err := svc.GroupDisplay(ctx, q("groupname", "dev"))
			require.NoError(t, err)
			assert.Equal(t, before.Group, after.Group)
		})
	}
}

func TestGroupOperationsValidateDomain(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	require.NoError(t, svc.GroupAdd(ctx, q("groupname", "ops")))

	display := func(c metadata.Call) error {
		_, err := svc.GroupDisplay(ctx, c)
		return err
	}
	tests := []struct {
		name string
		run  func(metadata.Call) error
		call metadata.Call
	}{
		{"gmodify", func(c metadata.Call) error { return svc.GroupModify(ctx, c) }, q("groupname", "ops", "domain", "bad domain!", "description", "x")},
		{"gdelete", func(c metadata.Call) error { return svc.GroupDelete(ctx, c) }, q("groupname", "ops", "domain", "bad domain!")},
		{"gdisplay", display, q("groupname", "ops", "domain", "bad domain!")},
		{"gclone", func(c metadata.Call) error { return svc.GroupClone(ctx, c) }, q("groupname", "ops", "domain", "bad domain!", "newdomain", "other.org")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(tt.call)
			require.Error(t, err)
			assert.Equal(t, directory.KindValidation, directory.KindOf(err), "%v", err)
			assert.Contains(t, err.Error(), "userdata/"+tt.name)
		})
	}

	_, err := svc.GroupDisplay(ctx, q("groupname", "ops"))
	assert.NoError(t, err)
}
