// Package jailfile parses and interprets Jailfiles: the FROM/RUN/COPY/ENV/
// VOLUME/ALLOW/MOUNT build script read by "xc build", grounded on the
// directive grammar in the original xc-bin/src/jailfile tree (pest-based
// in the original, reimplemented here as a small hand-written scanner since
// the grammar is line-oriented and does not need a PEG engine).
package jailfile

import (
	"fmt"
	"strings"
)

// Action is one parsed Jailfile statement: a directive name, its
// "--flag=value" options, its positional arguments, and an optional
// heredoc body (used by RUN <<EOF ... EOF).
type Action struct {
	Directive string
	Flags     map[string]string
	Args      []string
	Heredoc   *string
	Line      int
}

// Parse splits input into a sequence of Actions. Each logical statement is
// one line, except a RUN <<TAG form which consumes lines until a line
// containing only TAG.
func Parse(input string) ([]Action, error) {
	lines := strings.Split(input, "\n")
	var actions []Action
	for i := 0; i < len(lines); i++ {
		raw := strings.TrimSpace(lines[i])
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		fields, err := tokenize(raw)
		if err != nil {
			return nil, fmt.Errorf("jailfile line %d: %w", i+1, err)
		}
		if len(fields) == 0 {
			continue
		}
		directive := strings.ToUpper(fields[0])
		flags := map[string]string{}
		var args []string
		for _, f := range fields[1:] {
			if strings.HasPrefix(f, "--") {
				kv := strings.TrimPrefix(f, "--")
				if eq := strings.IndexByte(kv, '='); eq >= 0 {
					flags[kv[:eq]] = kv[eq+1:]
				} else {
					flags[kv] = "true"
				}
				continue
			}
			args = append(args, f)
		}

		action := Action{Directive: directive, Flags: flags, Args: args, Line: i + 1}

		if len(args) == 1 && strings.HasPrefix(args[0], "<<") {
			tag := strings.TrimPrefix(args[0], "<<")
			var body []string
			i++
			for i < len(lines) && strings.TrimSpace(lines[i]) != tag {
				body = append(body, lines[i])
				i++
			}
			if i >= len(lines) {
				return nil, fmt.Errorf("jailfile line %d: unterminated heredoc %q", action.Line, tag)
			}
			// The heredoc body retains its trailing newline, matching the
			// raw span xc-bin's parser captures up to the closing tag
			// line (RUN <<EOF\nline1\nline2\nEOF yields "line1\nline2\n").
			text := strings.Join(body, "\n") + "\n"
			action.Heredoc = &text
			action.Args = nil
		}

		actions = append(actions, action)
	}
	return actions, nil
}

// tokenize splits a line on whitespace, respecting single and double
// quoted spans so COPY/RUN arguments can contain spaces.
func tokenize(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuote := byte(0)
	has := false
	flush := func() {
		if has {
			fields = append(fields, cur.String())
			cur.Reset()
			has = false
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			} else {
				cur.WriteByte(c)
			}
			has = true
		case c == '\'' || c == '"':
			inQuote = c
			has = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
			has = true
		}
	}
	if inQuote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return fields, nil
}
