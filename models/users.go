package models

// User represents a directory user account.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Domain       string `json:"domain"`
	UID          int    `json:"uid"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Shell        string `json:"shell"`
	HomeDir      string `json:"home_dir"`
	Email        string `json:"email"`
	SSHPublicKey string `json:"ssh_public_key,omitempty"`
	Password     string `json:"-"`
	Type         string `json:"type"`
	Active       bool   `json:"active"`
}

// UserDisplay is a user together with the groups it belongs to.
type UserDisplay struct {
	User   User     `json:"user"`
	Groups []string `json:"groups"`
}

// Membership maps a user onto a group.
type Membership struct {
	ID      int64 `json:"id"`
	UserID  int64 `json:"user_id"`
	GroupID int64 `json:"group_id"`
}
