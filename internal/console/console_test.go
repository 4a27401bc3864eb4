package console

import (
	"testing"
)

func testChain() *Chain {
	ch := NewChain()
	ch.Register(&Command{
		Name: "tune",
		Args: []ArgSpec{
			{Name: "name", Kind: ArgTextFrom, Enum: []string{"gravity", "hook_length"}},
			{Name: "value", Kind: ArgFloat},
		},
		Auth: AuthAdmin,
		Exec: func(args []Value) []string {
			return []string{args[0].Text}
		},
	})
	ch.Register(&Command{
		Name: "say",
		Args: []ArgSpec{{Name: "text", Kind: ArgText}},
		Exec: func(args []Value) []string {
			return []string{args[0].Text}
		},
	})
	ch.Register(&Command{
		Name: "kick_id",
		Args: []ArgSpec{{Name: "id", Kind: ArgNumber}},
		Auth: AuthModerator,
		Exec: func(args []Value) []string { return nil },
	})
	return ch
}

// TestParseFullMatch parses typed arguments.
func TestParseFullMatch(t *testing.T) {
	ch := testChain()

	res, err := ch.Parse("tune gravity 0.25")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Cmd == nil || res.Cmd.Name != "tune" {
		t.Fatal("expected full match on tune")
	}
	if res.Args[0].Text != "gravity" || res.Args[1].F != 0.25 {
		t.Errorf("args = %+v", res.Args)
	}
}

// TestParsePartialMatch returns completion candidates for a prefix.
func TestParsePartialMatch(t *testing.T) {
	ch := testChain()

	res, err := ch.Parse("k")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Cmd != nil {
		t.Fatal("prefix should not fully match")
	}
	if len(res.Partial) != 1 || res.Partial[0] != "kick_id" {
		t.Errorf("partial = %v, want [kick_id]", res.Partial)
	}
}

// TestParseErrors covers unknown commands, enum misses and bad types.
func TestParseErrors(t *testing.T) {
	ch := testChain()
	tests := []string{
		"definitely_unknown",
		"tune not_a_tuning 1",
		"tune gravity not_a_float",
		"kick_id not_a_number",
		"kick_id",
		"",
	}
	for _, line := range tests {
		res, err := ch.Parse(line)
		if err == nil && res.Cmd != nil {
			t.Errorf("%q: expected a parse failure", line)
		}
	}
}

// TestTrailingTextSwallowsRest checks the final text argument takes the
// whole remainder.
func TestTrailingTextSwallowsRest(t *testing.T) {
	ch := testChain()
	out, err := ch.Exec("say hello world with spaces", AuthNone)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if len(out) != 1 || out[0] != "hello world with spaces" {
		t.Errorf("out = %v", out)
	}
}

// TestQuotedTokens honors double quotes.
func TestQuotedTokens(t *testing.T) {
	got := tokenize(`tune "hook length" 3`)
	if len(got) != 3 || got[1] != "hook length" {
		t.Errorf("tokenize = %v", got)
	}
}

// TestAuthGate rejects under-privileged execution with rejection text.
func TestAuthGate(t *testing.T) {
	ch := testChain()

	out, err := ch.Exec("tune gravity 1", AuthNone)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if len(out) != 1 || out[0] == "gravity" {
		t.Errorf("expected rejection text, got %v", out)
	}

	out, err = ch.Exec("tune gravity 1", AuthAdmin)
	if err != nil || len(out) != 1 || out[0] != "gravity" {
		t.Errorf("admin exec failed: %v %v", out, err)
	}
}

// TestCompleteAndUsages lists the catalogue for remote consoles.
func TestCompleteAndUsages(t *testing.T) {
	ch := testChain()

	if got := ch.Complete("tu"); len(got) != 1 || got[0] != "tune" {
		t.Errorf("Complete = %v", got)
	}
	usages := ch.Usages()
	if len(usages) != 3 {
		t.Fatalf("usages = %v", usages)
	}
	// Sorted by name: kick_id, say, tune.
	if usages[2] != "tune <name:gravity|hook_length> <value>" {
		t.Errorf("tune usage = %q", usages[2])
	}
}
