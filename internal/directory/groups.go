package directory

import (
	"context"
	"sort"
	"strconv"

	"github.com/EO-DataHub/eodhp-directory-services/internal/events"
	"github.com/EO-DataHub/eodhp-directory-services/internal/idalloc"
	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/EO-DataHub/eodhp-directory-services/internal/validate"
	"github.com/EO-DataHub/eodhp-directory-services/models"
)

// GroupAdd creates a group with its sudo commands, allocating a gid when
// none is given.
func (s *Service) GroupAdd(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "gadd")
	if err := validateCall(moduleUserdata, "gadd", call); err != nil {
		return wrap(op, err)
	}

	q := call.Query
	groupname, _ := q.Get("groupname")
	if err := validate.Name("groupname", groupname); err != nil {
		return wrap(op, err)
	}
	domain := s.domainOf(q)
	if err := validate.Domain(domain); err != nil {
		return wrap(op, err)
	}

	group := &models.Group{
		Groupname:   groupname,
		Domain:      domain,
		Description: defaultGroupDescription,
	}
	explicitGID, err := applyGroupFields(group, q)
	if err != nil {
		return wrap(op, err)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		return s.addGroup(ctx, tx, group, explicitGID)
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().
		Str("groupname", group.Groupname).
		Str("domain", group.Domain).
		Int("gid", group.GID).
		Strs("sudo_cmds", group.SudoCmds).
		Msg("group added")
	s.notify(ctx, events.NewChange(events.EntityGroup, events.ActionCreate, group.Groupname, group.Domain))
	return nil
}

// applyGroupFields copies the supplied fields onto group and reports
// whether a gid was given. sudo_cmds replaces the whole command set.
func applyGroupFields(group *models.Group, q metadata.Query) (bool, error) {
	if v, ok := q.Get("description"); ok && v != "" {
		group.Description = v
	}
	if v, ok := q.Get("sudo_cmds"); ok && v != "" {
		group.SudoCmds = normalizeSudoCmds(v)
	}

	raw, ok := q.Get("gid")
	if !ok || raw == "" {
		return false, nil
	}
	gid, err := validate.ParseID("gid", raw)
	if err != nil {
		return false, err
	}
	group.GID = gid
	return true, nil
}

func (s *Service) addGroup(ctx context.Context, tx Tx, group *models.Group, explicitGID bool) error {
	existing, err := tx.GetGroup(ctx, group.Groupname, group.Domain)
	if err != nil {
		return err
	}
	if existing != nil {
		return conflictf("group %s already exists in domain %s", group.Groupname, group.Domain)
	}

	if err := s.assignGID(ctx, tx, group, explicitGID); err != nil {
		return err
	}
	return tx.InsertGroup(ctx, group)
}

// assignGID validates an explicit gid or allocates the next free one.
func (s *Service) assignGID(ctx context.Context, tx Tx, group *models.Group, explicit bool) error {
	if explicit {
		if err := validate.IDInRange("gid", group.GID, s.cfg.GIDStart, s.cfg.GIDEnd); err != nil {
			return err
		}
	}

	if err := tx.LockIDs(ctx, GIDKind, group.Domain); err != nil {
		return err
	}
	gids, err := tx.GIDs(ctx, group.Domain)
	if err != nil {
		return err
	}

	if explicit {
		if validate.IDInUse(group.GID, gids) {
			return conflictf("gid %d is already in use in domain %s", group.GID, group.Domain)
		}
		return nil
	}

	gid, err := idalloc.Next(gids, s.cfg.GIDStart, s.cfg.GIDEnd)
	if err != nil {
		return conflictf("cannot allocate gid in domain %s: %v", group.Domain, err)
	}
	group.GID = gid
	return nil
}

// GroupModify changes only the supplied fields of an existing group.
func (s *Service) GroupModify(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "gmodify")
	if err := validateCall(moduleUserdata, "gmodify", call); err != nil {
		return wrap(op, err)
	}

	groupname, _ := call.Query.Get("groupname")
	domain, err := s.requestDomain(call.Query)
	if err != nil {
		return wrap(op, err)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		group, err := mustGetGroup(ctx, tx, groupname, domain)
		if err != nil {
			return err
		}
		oldGID := group.GID

		explicitGID, err := applyGroupFields(group, call.Query)
		if err != nil {
			return err
		}
		if explicitGID && group.GID != oldGID {
			if err := s.assignGID(ctx, tx, group, true); err != nil {
				return err
			}
		}
		return tx.UpdateGroup(ctx, group)
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().Str("groupname", groupname).Str("domain", domain).Msg("group modified")
	s.notify(ctx, events.NewChange(events.EntityGroup, events.ActionUpdate, groupname, domain))
	return nil
}

// GroupDelete removes a group and its sudo commands. Groups with members are kept.
func (s *Service) GroupDelete(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "gdelete")
	if err := validateCall(moduleUserdata, "gdelete", call); err != nil {
		return wrap(op, err)
	}

	groupname, _ := call.Query.Get("groupname")
	domain, err := s.requestDomain(call.Query)
	if err != nil {
		return wrap(op, err)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		group, err := mustGetGroup(ctx, tx, groupname, domain)
		if err != nil {
			return err
		}

		members, err := tx.MembersOfGroup(ctx, group.ID)
		if err != nil {
			return err
		}
		if len(members) > 0 {
			return inUsef("group %s still has %d member(s). remove the users from the group first",
				groupname, len(members))
		}

		return tx.DeleteGroup(ctx, group.ID)
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().Str("groupname", groupname).Str("domain", domain).Msg("group deleted")
	s.notify(ctx, events.NewChange(events.EntityGroup, events.ActionDelete, groupname, domain))
	return nil
}

// GroupClone copies a group, its gid and its sudo commands into another domain.
func (s *Service) GroupClone(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "gclone")
	if err := validateCall(moduleUserdata, "gclone", call); err != nil {
		return wrap(op, err)
	}

	groupname, _ := call.Query.Get("groupname")
	domain, _ := call.Query.Get("domain")
	newDomain, _ := call.Query.Get("newdomain")
	for _, d := range []string{domain, newDomain} {
		if err := validate.Domain(d); err != nil {
			return wrap(op, err)
		}
	}

	err := s.withTx(ctx, func(tx Tx) error {
		src, err := mustGetGroup(ctx, tx, groupname, domain)
		if err != nil {
			return err
		}

		clone := *src
		clone.ID = 0
		clone.Domain = newDomain
		clone.SudoCmds = append([]string(nil), src.SudoCmds...)
		return s.addGroup(ctx, tx, &clone, true)
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().Str("groupname", groupname).Str("from", domain).Str("to", newDomain).Msg("group cloned")
	s.notify(ctx, events.NewChange(events.EntityGroup, events.ActionCreate, groupname, newDomain))
	return nil
}

// GroupDisplay returns a group, its sudo commands and its member usernames.
func (s *Service) GroupDisplay(ctx context.Context, call metadata.Call) (*models.GroupDisplay, error) {
	op := opName(moduleUserdata, "gdisplay")
	if err := validateCall(moduleUserdata, "gdisplay", call); err != nil {
		return nil, wrap(op, err)
	}

	groupname, _ := call.Query.Get("groupname")
	domain, err := s.requestDomain(call.Query)
	if err != nil {
		return nil, wrap(op, err)
	}

	var display *models.GroupDisplay
	err = s.withTx(ctx, func(tx Tx) error {
		group, err := mustGetGroup(ctx, tx, groupname, domain)
		if err != nil {
			return err
		}
		members, err := tx.MembersOfGroup(ctx, group.ID)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(members))
		for _, u := range members {
			names = append(names, u.Username)
		}
		sort.Strings(names)
		display = &models.GroupDisplay{Group: *group, Members: names}
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return display, nil
}

// ListGroups summarises groups per domain as "groupname gid:N".
func (s *Service) ListGroups(ctx context.Context, call metadata.Call) (map[string][]string, error) {
	op := opName("list", "groups")
	if err := validateCall("list", "groups", call); err != nil {
		return nil, wrap(op, err)
	}

	domain, _ := call.Query.Get("domain")
	if domain != "" {
		if err := validate.Domain(domain); err != nil {
			return nil, wrap(op, err)
		}
	}

	listing := map[string][]string{}
	err := s.withTx(ctx, func(tx Tx) error {
		groups, err := tx.ListGroups(ctx, domain)
		if err != nil {
			return err
		}
		for _, g := range groups {
			listing[g.Domain] = append(listing[g.Domain], g.Groupname+" gid:"+strconv.Itoa(g.GID))
		}
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	if len(listing) == 0 {
		return nil, wrap(op, notFoundf("no groups found"))
	}
	for d := range listing {
		sort.Strings(listing[d])
	}
	return listing, nil
}

func mustGetGroup(ctx context.Context, tx Tx, groupname, domain string) (*models.Group, error) {
	group, err := tx.GetGroup(ctx, groupname, domain)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, notFoundf("group %s does not exist in domain %s", groupname, domain)
	}
	return group, nil
}
