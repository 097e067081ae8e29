package kernel

// RequestMeta carries transport-level request attributes that the domain layer
// needs for audit records but must not derive itself. The transport
// collaborator fills it in; empty values are acceptable.
type RequestMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}
