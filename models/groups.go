package models

// Group represents a directory group.
type Group struct {
	ID          int64    `json:"id"`
	Groupname   string   `json:"groupname"`
	Domain      string   `json:"domain"`
	GID         int      `json:"gid"`
	Description string   `json:"description"`
	SudoCmds    []string `json:"sudo_cmds"`
}

// GroupDisplay is a group together with its member usernames.
type GroupDisplay struct {
	Group   Group    `json:"group"`
	Members []string `json:"members"`
}
