// Package shellquote renders command lines that can be pasted into bash or zsh.
package shellquote

import (
	"net/url"
	"strings"
)

// safe holds the characters that never need quoting.
const safe = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_@%+=:,./-"

// Quote returns s unchanged when it is made of safe characters only, otherwise
// double quoted with \ " $ ` escaped and control whitespace spelled out.
func Quote(s string) string {
	if s == "" {
		return `""`
	}

	if strings.Trim(s, safe) == "" {
		return s
	}

	var b strings.Builder

	b.WriteByte('"')

	for _, r := range s {
		switch r {
		case '\\', '"', '$', '`':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}

	b.WriteByte('"')

	return b.String()
}

// Join renders bin and args as one command line. Passwords in URL arguments,
// such as authenticated proxies, are masked.
func Join(bin string, args []string) string {
	var cmdLine strings.Builder

	cmdLine.WriteString(Quote(bin))

	for _, arg := range args {
		cmdLine.WriteByte(' ')
		cmdLine.WriteString(Quote(redactPassword(arg)))
	}

	return cmdLine.String()
}

func redactPassword(arg string) string {
	if !strings.Contains(arg, "://") || !strings.Contains(arg, "@") {
		return arg
	}

	u, err := url.Parse(arg)
	if err != nil || u.User == nil {
		return arg
	}

	if _, ok := u.User.Password(); !ok {
		return arg
	}

	return u.Redacted()
}
