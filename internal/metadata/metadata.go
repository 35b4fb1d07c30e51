// Package metadata describes every callable operation exposed by the
// directory API. The same table drives request validation in the daemon
// and flag generation in the command line client.
package metadata

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// VarType is the kind of value an argument carries.
type VarType string

const (
	VarString VarType = "str"
	VarFile   VarType = "file"
)

// Operation identifies a handler at compile time.
type Operation int

const (
	OpUserDisplay Operation = iota + 1
	OpUserAdd
	OpUserDelete
	OpUserModify
	OpUserClone
	OpGroupDisplay
	OpGroupAdd
	OpGroupDelete
	OpGroupModify
	OpGroupClone
	OpUserToGroup
	OpUserRemoveGroup
	OpListUsers
	OpListGroups
)

// Arg describes a single named argument.
type Arg struct {
	Name    string  `json:"name"`
	VarType VarType `json:"vartype"`
	Desc    string  `json:"desc"`
	Flag    string  `json:"ol"`
}

// Method describes a callable operation of a module.
type Method struct {
	Name        string    `json:"name"`
	Short       string    `json:"short"`
	Description string    `json:"description"`
	RESTType    string    `json:"rest_type"`
	AdminOnly   bool      `json:"admin_only"`
	Required    []Arg     `json:"required_args"`
	Optional    []Arg     `json:"optional_args"`
	MinOptional int       `json:"min"`
	MaxOptional int       `json:"max"`
	Op          Operation `json:"-"`
}

// Module groups related methods under one namespace.
type Module struct {
	Name        string   `json:"name"`
	Short       string   `json:"shortname"`
	Description string   `json:"description"`
	Methods     []Method `json:"methods"`
}

// Query is the flat argument mapping passed to every operation.
type Query map[string]string

// Call is a single invocation: its query and any uploaded files.
type Call struct {
	Query Query
	Files []io.Reader
}

// Get returns the trimmed value of key and whether it was supplied.
func (q Query) Get(key string) (string, bool) {
	v, ok := q[key]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// QueryError is returned when a call does not match its method description.
type QueryError struct {
	Method string
	Msg    string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Msg)
}

var (
	argDomain = Arg{Name: "domain", VarType: VarString, Desc: "domain of the entry (default: configured default domain)", Flag: "d"}
	argUser   = Arg{Name: "username", VarType: VarString, Flag: "u"}
	argGroup  = Arg{Name: "groupname", VarType: VarString, Flag: "g"}
)

func withDesc(a Arg, desc string) Arg {
	a.Desc = desc
	return a
}

func userFields() []Arg {
	return []Arg{
		withDesc(argDomain, "domain to add the user under (default: configured default domain)"),
		{Name: "first_name", VarType: VarString, Desc: "user's first name (default John)", Flag: "f"},
		{Name: "last_name", VarType: VarString, Desc: "user's last name (default Doe)", Flag: "l"},
		{Name: "ssh_key", VarType: VarFile, Desc: "a file containing the user's ssh key(s)", Flag: "k"},
		{Name: "shell", VarType: VarString, Desc: "user's shell (default: configured shell)", Flag: "s"},
		{Name: "email_address", VarType: VarString, Desc: "user's email address (default: username@domain)", Flag: "e"},
		{Name: "home_dir", VarType: VarString, Desc: "user's home directory (default: configured home root/username)", Flag: "o"},
		{Name: "user_type", VarType: VarString, Desc: "user type, one of the configured user types", Flag: "t"},
		{Name: "uid", VarType: VarString, Desc: "user's uid (default will pick the next available uid)", Flag: "i"},
		{Name: "password", VarType: VarString, Desc: "user's password, stored as a salted hash", Flag: "p"},
	}
}

func groupFields() []Arg {
	return []Arg{
		withDesc(argDomain, "domain of the group (default: configured default domain)"),
		{Name: "description", VarType: VarString, Desc: "a description of the group", Flag: "e"},
		{Name: "sudo_cmds", VarType: VarString, Desc: "comma separated commands members of this group may run as root (all for ALL)", Flag: "s"},
		{Name: "gid", VarType: VarString, Desc: "group id number to assign to the group", Flag: "i"},
	}
}

var modules = []Module{
	{
		Name:        "userdata",
		Short:       "ud",
		Description: "allows for the creation and manipulation of users and groups",
		Methods: []Method{
			{
				Name: "udisplay", Short: "ud", Op: OpUserDisplay,
				Description: "display a user's info",
				RESTType:    http.MethodGet,
				Required:    []Arg{withDesc(argUser, "username of the user")},
				Optional:    []Arg{withDesc(argDomain, "domain of the user")},
				MaxOptional: 1,
			},
			{
				Name: "uadd", Short: "ua", Op: OpUserAdd,
				Description: "create a user entry in the user table",
				RESTType:    http.MethodPost,
				AdminOnly:   true,
				Required:    []Arg{withDesc(argUser, "username of the user to add to the database")},
				Optional:    userFields(),
				MaxOptional: len(userFields()),
			},
			{
				Name: "udelete", Short: "udel", Op: OpUserDelete,
				Description: "delete a user entry from the users table",
				RESTType:    http.MethodDelete,
				AdminOnly:   true,
				Required:    []Arg{withDesc(argUser, "username of the user to delete from the database")},
				Optional:    []Arg{withDesc(argDomain, "domain of the user to delete")},
				MaxOptional: 1,
			},
			{
				Name: "umodify", Short: "um", Op: OpUserModify,
				Description: "modify an existing user entry",
				RESTType:    http.MethodPut,
				AdminOnly:   true,
				Required:    []Arg{withDesc(argUser, "username of the user to modify")},
				Optional: append(userFields(), Arg{
					Name: "active", VarType: VarString, Flag: "a",
					Desc: "true/false (or t/f), activate/deactivate the user without removing it",
				}),
				MinOptional: 1,
				MaxOptional: len(userFields()) + 1,
			},
			{
				Name: "uclone", Short: "uc", Op: OpUserClone,
				Description: "clone a user from one domain to another",
				RESTType:    http.MethodPost,
				AdminOnly:   true,
				Required: []Arg{
					withDesc(argUser, "username of the user to clone from"),
					withDesc(argDomain, "domain to clone the user from"),
					{Name: "newdomain", VarType: VarString, Desc: "domain to clone the user into", Flag: "n"},
				},
			},
			{
				Name: "gdisplay", Short: "gd", Op: OpGroupDisplay,
				Description: "display a group's info",
				RESTType:    http.MethodGet,
				Required:    []Arg{withDesc(argGroup, "name of the group")},
				Optional:    []Arg{withDesc(argDomain, "domain of the group")},
				MaxOptional: 1,
			},
			{
				Name: "gadd", Short: "ga", Op: OpGroupAdd,
				Description: "create a group entry in the group table",
				RESTType:    http.MethodPost,
				AdminOnly:   true,
				Required:    []Arg{withDesc(argGroup, "name of the group to add to the database")},
				Optional:    groupFields(),
				MaxOptional: len(groupFields()),
			},
			{
				Name: "gdelete", Short: "gdel", Op: OpGroupDelete,
				Description: "delete a group entry from the groups table",
				RESTType:    http.MethodDelete,
				AdminOnly:   true,
				Required:    []Arg{withDesc(argGroup, "name of the group to delete from the database")},
				Optional:    []Arg{withDesc(argDomain, "domain to delete the group from")},
				MaxOptional: 1,
			},
			{
				Name: "gmodify", Short: "gm", Op: OpGroupModify,
				Description: "modify an existing group entry",
				RESTType:    http.MethodPut,
				AdminOnly:   true,
				Required:    []Arg{withDesc(argGroup, "name of the group to modify")},
				Optional:    groupFields(),
				MinOptional: 1,
				MaxOptional: len(groupFields()),
			},
			{
				Name: "gclone", Short: "gc", Op: OpGroupClone,
				Description: "clone a group from one domain to another",
				RESTType:    http.MethodPost,
				AdminOnly:   true,
				Required: []Arg{
					withDesc(argGroup, "name of the group to clone from"),
					withDesc(argDomain, "domain to clone from"),
					{Name: "newdomain", VarType: VarString, Desc: "new domain to clone the group into", Flag: "n"},
				},
			},
			{
				Name: "utog", Short: "utg", Op: OpUserToGroup,
				Description: "map a username to groupname in the same domain",
				RESTType:    http.MethodPost,
				AdminOnly:   true,
				Required: []Arg{
					withDesc(argUser, "username of the user to map"),
					withDesc(argGroup, "groupname to map the user to"),
				},
				Optional:    []Arg{withDesc(argDomain, "domain within which to map")},
				MaxOptional: 1,
			},
			{
				Name: "urmg", Short: "urg", Op: OpUserRemoveGroup,
				Description: "remove a username from a group in the same domain",
				RESTType:    http.MethodPost,
				AdminOnly:   true,
				Required: []Arg{
					withDesc(argUser, "username of the user to unmap"),
					withDesc(argGroup, "groupname to remove the user from"),
				},
				Optional:    []Arg{withDesc(argDomain, "domain within which to unmap")},
				MaxOptional: 1,
			},
		},
	},
	{
		Name:        "list",
		Short:       "lsv",
		Description: "retrieves and lists values from the database",
		Methods: []Method{
			{
				Name: "users", Short: "u", Op: OpListUsers,
				Description: "list all users",
				RESTType:    http.MethodGet,
				Optional:    []Arg{withDesc(argDomain, "only list users of this domain")},
				MaxOptional: 1,
			},
			{
				Name: "groups", Short: "g", Op: OpListGroups,
				Description: "list all groups",
				RESTType:    http.MethodGet,
				Optional:    []Arg{withDesc(argDomain, "only list groups of this domain")},
				MaxOptional: 1,
			},
		},
	},
}

// Modules returns the module table.
func Modules() []Module {
	return modules
}

// LookupModule finds a module by name or shortname.
func LookupModule(name string) (*Module, bool) {
	for i := range modules {
		if modules[i].Name == name || modules[i].Short == name {
			return &modules[i], true
		}
	}
	return nil, false
}

// Method finds a method of the module by name or short alias.
func (m *Module) Method(name string) (*Method, bool) {
	for i := range m.Methods {
		if m.Methods[i].Name == name || m.Methods[i].Short == name {
			return &m.Methods[i], true
		}
	}
	return nil, false
}

// MethodNames returns the sorted method names of the module.
func (m *Module) MethodNames() []string {
	names := make([]string, 0, len(m.Methods))
	for _, method := range m.Methods {
		names = append(names, method.Name)
	}
	sort.Strings(names)
	return names
}

// Args returns required followed by optional arguments.
func (m *Method) Args() []Arg {
	args := make([]Arg, 0, len(m.Required)+len(m.Optional))
	args = append(args, m.Required...)
	return append(args, m.Optional...)
}

func (m *Method) lookupArg(name string) (Arg, bool) {
	for _, a := range m.Args() {
		if a.Name == name {
			return a, true
		}
	}
	return Arg{}, false
}

func (m *Method) fileArg() (Arg, bool) {
	for _, a := range m.Args() {
		if a.VarType == VarFile {
			return a, true
		}
	}
	return Arg{}, false
}

// Validate checks the call against the method description: every key must
// be a known string argument, every required argument must be present and
// non-empty, and the total argument count must fall inside the bounds
// derived from the optional argument minimum and maximum.
func (m *Method) Validate(call Call) error {
	for key := range call.Query {
		arg, ok := m.lookupArg(key)
		if !ok {
			return &QueryError{Method: m.Name, Msg: fmt.Sprintf("unsupported argument: %s. valid arguments are: %s", key, strings.Join(m.argNames(), " "))}
		}
		if arg.VarType == VarFile {
			return &QueryError{Method: m.Name, Msg: fmt.Sprintf("argument %s must be uploaded as a file", key)}
		}
	}

	for _, req := range m.Required {
		if v, ok := call.Query.Get(req.Name); !ok || v == "" {
			return &QueryError{Method: m.Name, Msg: fmt.Sprintf("missing required argument: %s", req.Name)}
		}
	}

	count := len(call.Query)
	if len(call.Files) > 0 {
		if _, ok := m.fileArg(); !ok {
			return &QueryError{Method: m.Name, Msg: "this method does not accept file uploads"}
		}
		if len(call.Files) > 1 {
			return &QueryError{Method: m.Name, Msg: "only one file can be uploaded per call"}
		}
		count++
	}

	minArgs := len(m.Required) + m.MinOptional
	maxArgs := len(m.Required) + m.MaxOptional
	if count < minArgs {
		return &QueryError{Method: m.Name, Msg: fmt.Sprintf("not enough arguments! minimum number of arguments is: %d, you passed %d", minArgs, count)}
	}
	if count > maxArgs {
		return &QueryError{Method: m.Name, Msg: fmt.Sprintf("too many arguments! maximum number of arguments is: %d, you passed %d", maxArgs, count)}
	}
	return nil
}

func (m *Method) argNames() []string {
	var names []string
	for _, a := range m.Args() {
		names = append(names, a.Name)
	}
	return names
}
