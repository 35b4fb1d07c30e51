package directory

import (
	"context"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/EO-DataHub/eodhp-directory-services/internal/events"
	"github.com/EO-DataHub/eodhp-directory-services/internal/idalloc"
	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/EO-DataHub/eodhp-directory-services/internal/validate"
	"github.com/EO-DataHub/eodhp-directory-services/models"
)

const moduleUserdata = "userdata"

// UserAdd creates a user, allocating a uid when none is given and mapping
// the user into every configured default group.
func (s *Service) UserAdd(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "uadd")
	if err := validateCall(moduleUserdata, "uadd", call); err != nil {
		return wrap(op, err)
	}

	user, explicitUID, err := s.newUser(call)
	if err != nil {
		return wrap(op, err)
	}

	var groups []string
	err = s.withTx(ctx, func(tx Tx) error {
		var err error
		groups, err = s.addUser(ctx, tx, user, explicitUID)
		return err
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().
		Str("username", user.Username).
		Str("domain", user.Domain).
		Int("uid", user.UID).
		Strs("groups", groups).
		Msg("user added")
	s.notify(ctx, events.NewChange(events.EntityUser, events.ActionCreate, user.Username, user.Domain))
	return nil
}

// newUser builds a user from the query, filling in defaults for every
// omitted field.
func (s *Service) newUser(call metadata.Call) (*models.User, bool, error) {
	q := call.Query
	username, _ := q.Get("username")
	if err := validate.Name("username", username); err != nil {
		return nil, false, err
	}
	domain := s.domainOf(q)
	if err := validate.Domain(domain); err != nil {
		return nil, false, err
	}

	user := &models.User{
		Username:  username,
		Domain:    domain,
		FirstName: defaultFirstName,
		LastName:  defaultLastName,
		Shell:     s.cfg.Shell,
		HomeDir:   path.Join(s.cfg.HomeRoot, username),
		Email:     username + "@" + domain,
		Type:      s.cfg.DefUserType,
		Active:    true,
	}

	explicitUID, err := s.applyUserFields(user, call)
	if err != nil {
		return nil, false, err
	}
	return user, explicitUID, nil
}

// applyUserFields copies every supplied field of the call onto user. It
// reports whether a uid was given.
func (s *Service) applyUserFields(user *models.User, call metadata.Call) (bool, error) {
	q := call.Query

	if v, ok := q.Get("first_name"); ok && v != "" {
		if err := validate.Name("first_name", v); err != nil {
			return false, err
		}
		user.FirstName = v
	}
	if v, ok := q.Get("last_name"); ok && v != "" {
		if err := validate.Name("last_name", v); err != nil {
			return false, err
		}
		user.LastName = v
	}
	if v, ok := q.Get("shell"); ok && v != "" {
		user.Shell = v
	}
	if v, ok := q.Get("email_address"); ok && v != "" {
		user.Email = v
	}
	if v, ok := q.Get("home_dir"); ok && v != "" {
		user.HomeDir = v
	}
	if v, ok := q.Get("user_type"); ok && v != "" {
		if !s.validUserType(v) {
			return false, NewError(KindValidation, "invalid user type %q, pick one of: %s", v, strings.Join(s.cfg.UserTypes, " "))
		}
		user.Type = v
	}
	if v, ok := q.Get("active"); ok && v != "" {
		switch v {
		case "T", "t", "True", "true":
			user.Active = true
		case "F", "f", "False", "false":
			user.Active = false
		}
	}
	if v, ok := q.Get("password"); ok && v != "" {
		hashed, err := HashPassword(v, s.cfg.SaltSize)
		if err != nil {
			return false, err
		}
		user.Password = hashed
	}

	keys, ok, err := readSSHKeys(call.Files)
	if err != nil {
		return false, err
	}
	if ok {
		user.SSHPublicKey = keys
	}

	raw, ok := q.Get("uid")
	if !ok || raw == "" {
		return false, nil
	}
	uid, err := validate.ParseID("uid", raw)
	if err != nil {
		return false, err
	}
	user.UID = uid
	return true, nil
}

func (s *Service) validUserType(t string) bool {
	for _, ut := range s.cfg.UserTypes {
		if ut == t {
			return true
		}
	}
	return false
}

// addUser inserts user inside tx and returns the default groups it was mapped to.
func (s *Service) addUser(ctx context.Context, tx Tx, user *models.User, explicitUID bool) ([]string, error) {
	existing, err := tx.GetUser(ctx, user.Username, user.Domain)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, conflictf("user %s already exists in domain %s", user.Username, user.Domain)
	}

	if err := s.assignUID(ctx, tx, user, explicitUID); err != nil {
		return nil, err
	}

	// Every default group must already exist in the domain
	var defaults []*models.Group
	for _, name := range s.cfg.DefaultGroups {
		g, err := tx.GetGroup(ctx, name, user.Domain)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return nil, notFoundf("default group %s does not exist in domain %s", name, user.Domain)
		}
		defaults = append(defaults, g)
	}

	if err := tx.InsertUser(ctx, user); err != nil {
		return nil, err
	}

	var mapped []string
	for _, g := range defaults {
		if err := tx.InsertMembership(ctx, &models.Membership{UserID: user.ID, GroupID: g.ID}); err != nil {
			return nil, err
		}
		mapped = append(mapped, g.Groupname)
	}
	return mapped, nil
}

// assignUID validates an explicit uid or allocates the next free one.
func (s *Service) assignUID(ctx context.Context, tx Tx, user *models.User, explicit bool) error {
	if explicit {
		if err := validate.IDInRange("uid", user.UID, s.cfg.UIDStart, s.cfg.UIDEnd); err != nil {
			return err
		}
	}

	if err := tx.LockIDs(ctx, UIDKind, user.Domain); err != nil {
		return err
	}
	uids, err := tx.UIDs(ctx, user.Domain)
	if err != nil {
		return err
	}

	if explicit {
		if validate.IDInUse(user.UID, uids) {
			return conflictf("uid %d is already in use in domain %s", user.UID, user.Domain)
		}
		return nil
	}

	uid, err := idalloc.Next(uids, s.cfg.UIDStart, s.cfg.UIDEnd)
	if err != nil {
		return conflictf("cannot allocate uid in domain %s: %v", user.Domain, err)
	}
	user.UID = uid
	return nil
}

// UserModify changes only the supplied fields of an existing user.
func (s *Service) UserModify(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "umodify")
	if err := validateCall(moduleUserdata, "umodify", call); err != nil {
		return wrap(op, err)
	}

	username, _ := call.Query.Get("username")
	domain, err := s.requestDomain(call.Query)
	if err != nil {
		return wrap(op, err)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		user, err := mustGetUser(ctx, tx, username, domain)
		if err != nil {
			return err
		}
		oldUID := user.UID

		explicitUID, err := s.applyUserFields(user, call)
		if err != nil {
			return err
		}
		if explicitUID && user.UID != oldUID {
			if err := s.assignUID(ctx, tx, user, true); err != nil {
				return err
			}
		}
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().Str("username", username).Str("domain", domain).Msg("user modified")
	s.notify(ctx, events.NewChange(events.EntityUser, events.ActionUpdate, username, domain))
	return nil
}

// UserDelete removes a user. Users that still belong to a group are kept.
func (s *Service) UserDelete(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "udelete")
	if err := validateCall(moduleUserdata, "udelete", call); err != nil {
		return wrap(op, err)
	}

	username, _ := call.Query.Get("username")
	domain, err := s.requestDomain(call.Query)
	if err != nil {
		return wrap(op, err)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		user, err := mustGetUser(ctx, tx, username, domain)
		if err != nil {
			return err
		}

		groups, err := tx.GroupsOfUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(groups) > 0 {
			return inUsef("user %s is still a member of: %s. remove the memberships first",
				username, strings.Join(groupNames(groups), ", "))
		}

		return tx.DeleteUser(ctx, user.ID)
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().Str("username", username).Str("domain", domain).Msg("user deleted")
	s.notify(ctx, events.NewChange(events.EntityUser, events.ActionDelete, username, domain))
	return nil
}

// UserClone copies a user into another domain keeping its uid. The password
// hash is not carried over.
func (s *Service) UserClone(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "uclone")
	if err := validateCall(moduleUserdata, "uclone", call); err != nil {
		return wrap(op, err)
	}

	username, _ := call.Query.Get("username")
	domain, _ := call.Query.Get("domain")
	newDomain, _ := call.Query.Get("newdomain")
	for _, d := range []string{domain, newDomain} {
		if err := validate.Domain(d); err != nil {
			return wrap(op, err)
		}
	}

	err := s.withTx(ctx, func(tx Tx) error {
		src, err := mustGetUser(ctx, tx, username, domain)
		if err != nil {
			return err
		}

		clone := *src
		clone.ID = 0
		clone.Domain = newDomain
		clone.Password = ""

		_, err = s.addUser(ctx, tx, &clone, true)
		return err
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().Str("username", username).Str("from", domain).Str("to", newDomain).Msg("user cloned")
	s.notify(ctx, events.NewChange(events.EntityUser, events.ActionCreate, username, newDomain))
	return nil
}

// UserDisplay returns a user and the names of its groups.
func (s *Service) UserDisplay(ctx context.Context, call metadata.Call) (*models.UserDisplay, error) {
	op := opName(moduleUserdata, "udisplay")
	if err := validateCall(moduleUserdata, "udisplay", call); err != nil {
		return nil, wrap(op, err)
	}

	username, _ := call.Query.Get("username")
	domain, err := s.requestDomain(call.Query)
	if err != nil {
		return nil, wrap(op, err)
	}

	var display *models.UserDisplay
	err = s.withTx(ctx, func(tx Tx) error {
		user, err := mustGetUser(ctx, tx, username, domain)
		if err != nil {
			return err
		}
		groups, err := tx.GroupsOfUser(ctx, user.ID)
		if err != nil {
			return err
		}
		display = &models.UserDisplay{User: *user, Groups: groupNames(groups)}
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return display, nil
}

// ListUsers summarises users per domain as "username uid:N active|inactive".
func (s *Service) ListUsers(ctx context.Context, call metadata.Call) (map[string][]string, error) {
	op := opName("list", "users")
	if err := validateCall("list", "users", call); err != nil {
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
		users, err := tx.ListUsers(ctx, domain)
		if err != nil {
			return err
		}
		for _, u := range users {
			state := "active"
			if !u.Active {
				state = "inactive"
			}
			listing[u.Domain] = append(listing[u.Domain], u.Username+" uid:"+strconv.Itoa(u.UID)+" "+state)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	if len(listing) == 0 {
		return nil, wrap(op, notFoundf("no users found"))
	}
	for d := range listing {
		sort.Strings(listing[d])
	}
	return listing, nil
}

func mustGetUser(ctx context.Context, tx Tx, username, domain string) (*models.User, error) {
	user, err := tx.GetUser(ctx, username, domain)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFoundf("user %s does not exist in domain %s", username, domain)
	}
	return user, nil
}

func groupNames(groups []models.Group) []string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Groupname)
	}
	sort.Strings(names)
	return names
}
