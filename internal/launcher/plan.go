// Package launcher starts deepwiki in one of its operating modes and keeps
// the resulting child processes supervised until shutdown.
package launcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kratos06/deepwiki-open/internal/config"
)

// Mode selects which interfaces the launcher brings up.
type Mode string

const (
	ModeWeb  Mode = config.ModeWeb
	ModeMCP  Mode = config.ModeMCP
	ModeBoth Mode = config.ModeBoth
)

// Child roles, used to tag output lines.
const (
	RoleWeb      = "WEB"
	RoleMCP      = "MCP"
	RoleCombined = "COMBINED"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeWeb, ModeMCP, ModeBoth:
		return m, nil
	default:
		return "", fmt.Errorf("invalid mode %q (use web, mcp or both)", s)
	}
}

// LaunchSpec describes one child process to start.
type LaunchSpec struct {
	Role string
	Args []string
	Env  map[string]string
	Port int
}

// Plan returns the children to launch for mode. Mode "both" runs a single
// combined child hosting the web API with the MCP integration enabled,
// unless split is set, in which case the web API and a standalone MCP
// server run as two independent children on port and port+1.
func Plan(mode Mode, port int, split bool, exe string) []LaunchSpec {
	p := strconv.Itoa(port)
	switch mode {
	case ModeWeb:
		return []LaunchSpec{webSpec(RoleWeb, exe, port, false)}
	case ModeMCP:
		return []LaunchSpec{mcpSpec(exe, port)}
	case ModeBoth:
		if split {
			return []LaunchSpec{
				webSpec(RoleWeb, exe, port, false),
				mcpSpec(exe, port+1),
			}
		}
		return []LaunchSpec{{
			Role: RoleCombined,
			Args: []string{exe, "web", "--port", p},
			Env: map[string]string{
				"ENABLE_MCP_SERVER": "true",
				"PORT":              p,
			},
			Port: port,
		}}
	default:
		return nil
	}
}

func webSpec(role, exe string, port int, enableMCP bool) LaunchSpec {
	p := strconv.Itoa(port)
	return LaunchSpec{
		Role: role,
		Args: []string{exe, "web", "--port", p},
		Env: map[string]string{
			"ENABLE_MCP_SERVER": strconv.FormatBool(enableMCP),
			"PORT":              p,
		},
		Port: port,
	}
}

func mcpSpec(exe string, port int) LaunchSpec {
	// The HTTP transport keeps stdout free: child output is captured by the
	// supervisor, so stdio could not carry the protocol.
	return LaunchSpec{
		Role: RoleMCP,
		Args: []string{exe, "mcp", "--transport", config.TransportHTTP, "--port", strconv.Itoa(port)},
		Env:  map[string]string{},
		Port: port,
	}
}
