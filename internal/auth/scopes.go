package auth

// Scopes recognised by the menu API.
const (
	ScopeMenuRead  = "menu:read"
	ScopeMenuWrite = "menu:write"
	ScopeSyncWrite = "sync:write"
)
