package registry

// Connection is a pre-created tenant connection that tool calls may target.
// Connections are created by the operator; nothing in this module writes them.
type Connection struct {
	Name          string `json:"-"`
	Tenant        string `json:"tenant"`
	ExpectedEmail string `json:"expectedEmail,omitempty"`
	Description   string `json:"description,omitempty"`
}

// registryFile is the on-disk shape of the connections file.
type registryFile struct {
	Connections map[string]Connection `json:"connections"`
}
