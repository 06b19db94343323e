package config_test

import (
	"testing"

	"github.com/mirevald/daybook/internal/config"
	"github.com/mirevald/daybook/internal/tools"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Assistant: config.AssistantConfig{
			Provider: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
		},
		MCP: config.MCPConfig{
			Servers: []config.MCPServerConfig{
				{Name: "files", Transport: tools.TransportStdio, Command: "/bin/mcp-files"},
			},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.AssistantChanged || d.MCPChanged {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("expected LogLevelChanged")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_AssistantProvider(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Assistant.Provider.Model = "gpt-4o"

	if d := config.Diff(old, new); !d.AssistantChanged {
		t.Error("expected AssistantChanged for a model change")
	}

	new = baseConfig()
	new.Assistant.Temperature = 0.9
	if d := config.Diff(old, new); !d.AssistantChanged {
		t.Error("expected AssistantChanged for a temperature change")
	}
}

func TestDiff_MCPServerAdded(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.MCP.Servers = append(new.MCP.Servers, config.MCPServerConfig{
		Name: "web", Transport: tools.TransportStreamableHTTP, URL: "https://tools.example.com/mcp",
	})

	d := config.Diff(old, new)
	if !d.MCPChanged {
		t.Fatal("expected MCPChanged")
	}
	if len(d.MCPChanges) != 1 || d.MCPChanges[0].Name != "web" || !d.MCPChanges[0].Added {
		t.Errorf("MCPChanges = %+v", d.MCPChanges)
	}
}

func TestDiff_MCPServerRemoved(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.MCP.Servers = nil

	d := config.Diff(old, new)
	if !d.MCPChanged {
		t.Fatal("expected MCPChanged")
	}
	if len(d.MCPChanges) != 1 || d.MCPChanges[0].Name != "files" || !d.MCPChanges[0].Removed {
		t.Errorf("MCPChanges = %+v", d.MCPChanges)
	}
}

func TestDiff_MCPServerModified(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.MCP.Servers[0].Command = "/bin/mcp-files --verbose"

	d := config.Diff(old, new)
	if !d.MCPChanged {
		t.Fatal("expected MCPChanged")
	}
	if len(d.MCPChanges) != 1 || !d.MCPChanges[0].Modified {
		t.Errorf("MCPChanges = %+v", d.MCPChanges)
	}
}

func TestDiff_MCPServerEnvModified(t *testing.T) {
	old := baseConfig()
	old.MCP.Servers[0].Env = map[string]string{"ROOT": "/srv/a"}
	new := baseConfig()
	new.MCP.Servers[0].Env = map[string]string{"ROOT": "/srv/b"}

	d := config.Diff(old, new)
	if !d.MCPChanged || len(d.MCPChanges) != 1 || !d.MCPChanges[0].Modified {
		t.Errorf("expected a Modified diff for an env change, got %+v", d)
	}
}

func TestDiff_IgnoresRestartOnlyFields(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Server.ListenAddr = ":9999"
	new.Database.URL = "postgres://elsewhere/daybook"
	new.Speech.SessionRenewalMinutes = 90

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.AssistantChanged || d.MCPChanged {
		t.Errorf("restart-only fields should not appear in the diff, got %+v", d)
	}
}
