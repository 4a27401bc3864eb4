// Package console implements the typed command chain shared by the remote
// console and chat commands. Commands are registered in a catalogue with
// typed arguments; the parser returns either a fully matched command or a
// partial match that remote consoles use for tab completion.
package console

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AuthLevel gates command execution.
type AuthLevel uint8

const (
	AuthNone AuthLevel = iota
	AuthModerator
	AuthAdmin
)

func (a AuthLevel) String() string {
	switch a {
	case AuthModerator:
		return "moderator"
	case AuthAdmin:
		return "admin"
	default:
		return "none"
	}
}

// ArgKind is the type of a command argument.
type ArgKind uint8

const (
	ArgNumber ArgKind = iota
	ArgFloat
	ArgText
	ArgTextFrom
)

// ArgSpec describes one typed argument.
type ArgSpec struct {
	Name string
	Kind ArgKind
	// Enum lists the accepted values for ArgTextFrom.
	Enum []string
	// Optional arguments may be omitted; only trailing arguments can be
	// optional.
	Optional bool
}

// Value is one parsed argument.
type Value struct {
	Num  int64
	F    float64
	Text string
}

// Command is one catalogue entry.
type Command struct {
	Name string
	Help string
	Args []ArgSpec
	Auth AuthLevel
	Exec func(args []Value) []string
}

// Usage renders the command's argument signature.
func (c *Command) Usage() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, a := range c.Args {
		b.WriteByte(' ')
		open, close := "<", ">"
		if a.Optional {
			open, close = "[", "]"
		}
		switch a.Kind {
		case ArgTextFrom:
			fmt.Fprintf(&b, "%s%s:%s%s", open, a.Name, strings.Join(a.Enum, "|"), close)
		default:
			fmt.Fprintf(&b, "%s%s%s", open, a.Name, close)
		}
	}
	return b.String()
}

// Chain is the registered command catalogue.
type Chain struct {
	cmds map[string]*Command
}

// NewChain returns an empty catalogue.
func NewChain() *Chain {
	return &Chain{cmds: make(map[string]*Command)}
}

// Register adds a command. Re-registering a name replaces it.
func (ch *Chain) Register(cmd *Command) {
	ch.cmds[cmd.Name] = cmd
}

// Names returns every registered command name, sorted. Remote consoles use
// this for their completion list.
func (ch *Chain) Names() []string {
	names := make([]string, 0, len(ch.cmds))
	for n := range ch.cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Usages returns "name <args>" lines for every command, sorted by name.
func (ch *Chain) Usages() []string {
	names := ch.Names()
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, ch.cmds[n].Usage())
	}
	return out
}

// Complete returns the command names starting with prefix, for interactive
// tab completion of a partial match.
func (ch *Chain) Complete(prefix string) []string {
	var out []string
	for _, n := range ch.Names() {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out
}

// ParseResult is either a full match (Cmd set) or a partial one (Partial
// holds the completion candidates).
type ParseResult struct {
	Cmd     *Command
	Args    []Value
	Partial []string
}

// Parse tokenizes a line and matches it against the catalogue. An unknown
// name with prefix matches yields a partial result instead of an error.
func (ch *Chain) Parse(line string) (ParseResult, error) {
	fields := tokenize(line)
	if len(fields) == 0 {
		return ParseResult{}, fmt.Errorf("console: empty command")
	}
	name := fields[0]
	cmd, ok := ch.cmds[name]
	if !ok {
		if partial := ch.Complete(name); len(partial) > 0 {
			return ParseResult{Partial: partial}, nil
		}
		return ParseResult{}, fmt.Errorf("console: unknown command %q", name)
	}

	raw := fields[1:]
	args := make([]Value, 0, len(cmd.Args))
	for i, spec := range cmd.Args {
		if i >= len(raw) {
			if spec.Optional {
				break
			}
			return ParseResult{}, fmt.Errorf("console: %s: missing argument %q", name, spec.Name)
		}
		tok := raw[i]
		// The final text argument swallows the rest of the line.
		if spec.Kind == ArgText && i == len(cmd.Args)-1 {
			tok = strings.Join(raw[i:], " ")
		}
		v, err := parseArg(spec, tok)
		if err != nil {
			return ParseResult{}, fmt.Errorf("console: %s: %w", name, err)
		}
		args = append(args, v)
	}
	return ParseResult{Cmd: cmd, Args: args}, nil
}

// Exec parses and runs a line under the given auth level, returning the
// command's text output.
func (ch *Chain) Exec(line string, auth AuthLevel) ([]string, error) {
	res, err := ch.Parse(line)
	if err != nil {
		return nil, err
	}
	if res.Cmd == nil {
		return []string{"did you mean: " + strings.Join(res.Partial, ", ")}, nil
	}
	if auth < res.Cmd.Auth {
		return []string{fmt.Sprintf("access denied: %s requires %s", res.Cmd.Name, res.Cmd.Auth)}, nil
	}
	return res.Cmd.Exec(res.Args), nil
}

func parseArg(spec ArgSpec, tok string) (Value, error) {
	switch spec.Kind {
	case ArgNumber:
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("argument %q: not a number: %q", spec.Name, tok)
		}
		return Value{Num: n}, nil
	case ArgFloat:
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Value{}, fmt.Errorf("argument %q: not a float: %q", spec.Name, tok)
		}
		return Value{F: f}, nil
	case ArgTextFrom:
		for _, e := range spec.Enum {
			if tok == e {
				return Value{Text: tok}, nil
			}
		}
		return Value{}, fmt.Errorf("argument %q: %q not in {%s}", spec.Name, tok, strings.Join(spec.Enum, ", "))
	default:
		return Value{Text: tok}, nil
	}
}

// tokenize splits on spaces, honoring double quotes.
func tokenize(line string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
