package directory

import (
	"context"

	"github.com/EO-DataHub/eodhp-directory-services/internal/events"
)

// Refresh republishes every user and group so that the directory
// projection can be rebuilt from the relational store. domain limits the
// refresh to one domain when set.
func (s *Service) Refresh(ctx context.Context, domain string) (int, error) {
	var changes []events.Change
	err := s.withTx(ctx, func(tx Tx) error {
		groups, err := tx.ListGroups(ctx, domain)
		if err != nil {
			return err
		}
		for _, g := range groups {
			changes = append(changes, events.NewChange(events.EntityGroup, events.ActionRefresh, g.Groupname, g.Domain))
		}

		users, err := tx.ListUsers(ctx, domain)
		if err != nil {
			return err
		}
		for _, u := range users {
			changes = append(changes, events.NewChange(events.EntityUser, events.ActionRefresh, u.Username, u.Domain))
		}
		return nil
	})
	if err != nil {
		return 0, wrap("refresh", err)
	}

	for _, change := range changes {
		if err := s.notifier.Notify(ctx, change); err != nil {
			return 0, wrap("refresh", err)
		}
	}

	logger(ctx).Info().Int("entries", len(changes)).Str("domain", domain).Msg("directory refresh published")
	return len(changes), nil
}
