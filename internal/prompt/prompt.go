package prompt

import (
	"os"
	"os/user"
	"strings"
)

type Env struct {
	User string
	Host string
	Cwd  string
	Home string
	Root bool
}

// Current describes the running shell, with placeholders for anything
// that cannot be looked up.
func Current() Env {
	env := Env{User: "username", Host: "hostname", Cwd: "?", Root: os.Geteuid() == 0}

	if curUser, err := user.Current(); err == nil {
		env.User = curUser.Username
	}
	if curHostName, err := os.Hostname(); err == nil {
		env.Host = curHostName
	}
	if curCwd, err := os.Getwd(); err == nil {
		env.Cwd = curCwd
	}
	env.Home, _ = os.LookupEnv("HOME")

	return env
}

// Render expands \u, \h, \w and \$ in format.
func Render(format string, env Env) string {
	cwd := env.Cwd
	if env.Home != "" && (cwd == env.Home || strings.HasPrefix(cwd, env.Home+"/")) {
		cwd = "~" + strings.TrimPrefix(cwd, env.Home)
	}

	sign := "$"
	if env.Root {
		sign = "#"
	}

	return strings.NewReplacer(
		`\u`, env.User,
		`\h`, env.Host,
		`\w`, cwd,
		`\$`, sign,
	).Replace(format)
}
