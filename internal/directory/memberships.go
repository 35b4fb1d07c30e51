package directory

import (
	"context"

	"github.com/EO-DataHub/eodhp-directory-services/internal/events"
	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/EO-DataHub/eodhp-directory-services/models"
)

// UserToGroup maps a user onto a group of the same domain.
func (s *Service) UserToGroup(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "utog")
	if err := validateCall(moduleUserdata, "utog", call); err != nil {
		return wrap(op, err)
	}

	username, _ := call.Query.Get("username")
	groupname, _ := call.Query.Get("groupname")
	domain, err := s.requestDomain(call.Query)
	if err != nil {
		return wrap(op, err)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		user, group, err := userAndGroup(ctx, tx, username, groupname, domain)
		if err != nil {
			return err
		}

		existing, err := tx.GetMembership(ctx, user.ID, group.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return conflictf("user %s is already a member of group %s in domain %s", username, groupname, domain)
		}

		return tx.InsertMembership(ctx, &models.Membership{UserID: user.ID, GroupID: group.ID})
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().Str("username", username).Str("groupname", groupname).Str("domain", domain).Msg("user mapped to group")
	change := events.NewChange(events.EntityMembership, events.ActionCreate, groupname, domain)
	change.Member = username
	s.notify(ctx, change)
	return nil
}

// UserRemoveGroup removes a user from a group of the same domain.
func (s *Service) UserRemoveGroup(ctx context.Context, call metadata.Call) error {
	op := opName(moduleUserdata, "urmg")
	if err := validateCall(moduleUserdata, "urmg", call); err != nil {
		return wrap(op, err)
	}

	username, _ := call.Query.Get("username")
	groupname, _ := call.Query.Get("groupname")
	domain, err := s.requestDomain(call.Query)
	if err != nil {
		return wrap(op, err)
	}

	err = s.withTx(ctx, func(tx Tx) error {
		user, group, err := userAndGroup(ctx, tx, username, groupname, domain)
		if err != nil {
			return err
		}

		existing, err := tx.GetMembership(ctx, user.ID, group.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return notFoundf("user %s is not a member of group %s in domain %s", username, groupname, domain)
		}

		return tx.DeleteMembership(ctx, existing.ID)
	})
	if err != nil {
		return wrap(op, err)
	}

	logger(ctx).Info().Str("username", username).Str("groupname", groupname).Str("domain", domain).Msg("user removed from group")
	change := events.NewChange(events.EntityMembership, events.ActionDelete, groupname, domain)
	change.Member = username
	s.notify(ctx, change)
	return nil
}

func userAndGroup(ctx context.Context, tx Tx, username, groupname, domain string) (*models.User, *models.Group, error) {
	user, err := mustGetUser(ctx, tx, username, domain)
	if err != nil {
		return nil, nil, err
	}
	group, err := mustGetGroup(ctx, tx, groupname, domain)
	if err != nil {
		return nil, nil, err
	}
	return user, group, nil
}
