// Package directory implements user, group, membership and sudo rule
// provisioning on top of a transactional Store.
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/EO-DataHub/eodhp-directory-services/internal/events"
	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/EO-DataHub/eodhp-directory-services/internal/validate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultFirstName        = "John"
	defaultLastName         = "Doe"
	defaultGroupDescription = "Please add a description for this group!"
	success                 = "success"
)

// Config holds the provisioning policy. It is copied into the Service and
// never changed afterwards.
type Config struct {
	DefaultDomain string
	UIDStart      int
	UIDEnd        int
	GIDStart      int
	GIDEnd        int
	UserTypes     []string
	DefUserType   string
	DefaultGroups []string
	HomeRoot      string
	Shell         string
	SaltSize      int
}

// HandlerFunc is the uniform signature every operation is dispatched through.
type HandlerFunc func(ctx context.Context, call metadata.Call) (interface{}, error)

type Service struct {
	cfg      Config
	store    Store
	notifier events.Notifier
	handlers map[metadata.Operation]HandlerFunc
}

// NewService wires the operations to the store. A nil notifier drops change events.
func NewService(cfg Config, store Store, notifier events.Notifier) *Service {
	if notifier == nil {
		notifier = events.NoopNotifier{}
	}
	cfg.UserTypes = append([]string(nil), cfg.UserTypes...)
	cfg.DefaultGroups = append([]string(nil), cfg.DefaultGroups...)

	s := &Service{cfg: cfg, store: store, notifier: notifier}
	s.handlers = map[metadata.Operation]HandlerFunc{
		metadata.OpUserDisplay: func(ctx context.Context, c metadata.Call) (interface{}, error) {
			return s.UserDisplay(ctx, c)
		},
		metadata.OpUserAdd:    s.successOnly(s.UserAdd),
		metadata.OpUserDelete: s.successOnly(s.UserDelete),
		metadata.OpUserModify: s.successOnly(s.UserModify),
		metadata.OpUserClone:  s.successOnly(s.UserClone),
		metadata.OpGroupDisplay: func(ctx context.Context, c metadata.Call) (interface{}, error) {
			return s.GroupDisplay(ctx, c)
		},
		metadata.OpGroupAdd:        s.successOnly(s.GroupAdd),
		metadata.OpGroupDelete:     s.successOnly(s.GroupDelete),
		metadata.OpGroupModify:     s.successOnly(s.GroupModify),
		metadata.OpGroupClone:      s.successOnly(s.GroupClone),
		metadata.OpUserToGroup:     s.successOnly(s.UserToGroup),
		metadata.OpUserRemoveGroup: s.successOnly(s.UserRemoveGroup),
		metadata.OpListUsers: func(ctx context.Context, c metadata.Call) (interface{}, error) {
			return s.ListUsers(ctx, c)
		},
		metadata.OpListGroups: func(ctx context.Context, c metadata.Call) (interface{}, error) {
			return s.ListGroups(ctx, c)
		},
	}
	return s
}

func (s *Service) successOnly(fn func(context.Context, metadata.Call) error) HandlerFunc {
	return func(ctx context.Context, call metadata.Call) (interface{}, error) {
		if err := fn(ctx, call); err != nil {
			return nil, err
		}
		return success, nil
	}
}

// Config returns a copy of the provisioning policy.
func (s *Service) Config() Config {
	return s.cfg
}

// Handle runs the operation behind op.
func (s *Service) Handle(ctx context.Context, op metadata.Operation, call metadata.Call) (interface{}, error) {
	h, ok := s.handlers[op]
	if !ok {
		return nil, malformedf("unsupported operation: %d", op)
	}
	return h(ctx, call)
}

// withTx runs fn inside one transaction, committing on success and rolling
// back on any error.
func (s *Service) withTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				zerolog.Ctx(ctx).Error().Err(rbErr).Msg("error rolling back transaction")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// notify forwards committed changes. Delivery failures do not undo the write.
func (s *Service) notify(ctx context.Context, changes ...events.Change) {
	for _, change := range changes {
		if err := s.notifier.Notify(ctx, change); err != nil {
			logger(ctx).Warn().Err(err).
				Str("entity", change.Entity).
				Str("action", change.Action).
				Str("name", change.Name).
				Str("domain", change.Domain).
				Msg("failed to publish directory change")
		}
	}
}

// validateCall checks the call against the operation's metadata.
func validateCall(module, method string, call metadata.Call) error {
	mod, ok := metadata.LookupModule(module)
	if !ok {
		return malformedf("unknown module: %s", module)
	}
	m, ok := mod.Method(method)
	if !ok {
		return malformedf("unknown method: %s/%s", module, method)
	}
	if call.Query == nil {
		call.Query = metadata.Query{}
	}
	return m.Validate(call)
}

func (s *Service) domainOf(q metadata.Query) string {
	if d, ok := q.Get("domain"); ok && d != "" {
		return d
	}
	return s.cfg.DefaultDomain
}

// requestDomain resolves the domain of a call and checks its syntax.
func (s *Service) requestDomain(q metadata.Query) (string, error) {
	domain := s.domainOf(q)
	if err := validate.Domain(domain); err != nil {
		return "", err
	}
	return domain, nil
}

func opName(module, method string) string {
	return module + "/" + method
}

func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// normalizeSudoCmds splits a comma separated command list, dropping empty
// entries and duplicates. Any spelling of "all" becomes ALL.
func normalizeSudoCmds(raw string) []string {
	seen := map[string]bool{}
	var cmds []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.EqualFold(c, "all") {
			c = "ALL"
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		cmds = append(cmds, c)
	}
	return cmds
}
