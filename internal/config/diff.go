package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (listen address, database URL, speech timers) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssistantChanged is true when the provider entry or tuning changed and
	// the responder should be rebuilt.
	AssistantChanged bool

	// MCPChanged is true if any MCP server was added, removed, or modified.
	MCPChanged bool
	MCPChanges []MCPServerDiff
}

// MCPServerDiff describes what changed for a single MCP server between two
// configs.
type MCPServerDiff struct {
	Name     string
	Added    bool
	Removed  bool
	Modified bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Assistant != new.Assistant {
		d.AssistantChanged = true
	}

	oldServers := make(map[string]*MCPServerConfig, len(old.MCP.Servers))
	for i := range old.MCP.Servers {
		oldServers[old.MCP.Servers[i].Name] = &old.MCP.Servers[i]
	}
	newServers := make(map[string]*MCPServerConfig, len(new.MCP.Servers))
	for i := range new.MCP.Servers {
		newServers[new.MCP.Servers[i].Name] = &new.MCP.Servers[i]
	}

	for name, oldSrv := range oldServers {
		newSrv, exists := newServers[name]
		if !exists {
			d.MCPChanges = append(d.MCPChanges, MCPServerDiff{Name: name, Removed: true})
			d.MCPChanged = true
			continue
		}
		if !sameServer(oldSrv, newSrv) {
			d.MCPChanges = append(d.MCPChanges, MCPServerDiff{Name: name, Modified: true})
			d.MCPChanged = true
		}
	}
	for name := range newServers {
		if _, exists := oldServers[name]; !exists {
			d.MCPChanges = append(d.MCPChanges, MCPServerDiff{Name: name, Added: true})
			d.MCPChanged = true
		}
	}

	return d
}

// sameServer compares two MCP server entries with the same name.
// Env maps are compared by content.
func sameServer(old, new *MCPServerConfig) bool {
	if old.Transport != new.Transport || old.Command != new.Command || old.URL != new.URL {
		return false
	}
	if len(old.Env) != len(new.Env) {
		return false
	}
	for k, v := range old.Env {
		if new.Env[k] != v {
			return false
		}
	}
	return true
}
