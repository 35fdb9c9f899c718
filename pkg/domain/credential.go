package domain

// BearerCredential identifies the account a remote sandbox is provisioned for.
type BearerCredential struct {
	Token     string `json:"-"`
	TeamID    string `json:"teamId"`
	ProjectID string `json:"projectId"`
}
