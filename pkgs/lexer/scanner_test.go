package lexer

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xmk-lang/xmk/pkgs/errors"
	"github.com/xmk-lang/xmk/pkgs/source"
)

// fakeEnv supplies defines and scope state without a full model store.
type fakeEnv struct {
	defines map[string]string
	scope   string
	deps    []string
}

func (e *fakeEnv) Define(name string) (string, bool) {
	v, ok := e.defines[name]
	return v, ok
}

func (e *fakeEnv) ScopeName() (string, bool) {
	return e.scope, e.scope != ""
}

func (e *fakeEnv) Dependency(i int) (string, error) {
	if e.scope == "" {
		return "", errors.New(errors.KindScopeViolation, "no scope")
	}
	if i < 0 || i >= len(e.deps) {
		return "", errors.Newf(errors.KindIndexOutOfRange, "index %d out of range", i)
	}
	return e.deps[i], nil
}

// wordExpectation is a compact expected word: text plus newline flag.
type wordExpectation struct {
	Text    string
	Newline bool
}

// scanAll drains the scanner into comparable words.
func scanAll(t *testing.T, input string, env Env) []wordExpectation {
	t.Helper()
	if env == nil {
		env = &fakeEnv{}
	}
	sc := New(source.New(input), env)
	var out []wordExpectation
	for {
		w, err := sc.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, wordExpectation{Text: w.Text, Newline: w.Newline})
	}
}

func assertWords(t *testing.T, input string, env Env, expected []wordExpectation) {
	t.Helper()
	got := scanAll(t, input, env)
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("word mismatch for %q (-want +got):\n%s", input, diff)
	}
}

func TestScanBasicWords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []wordExpectation
	}{
		{
			name:  "single line",
			input: "build out",
			expected: []wordExpectation{
				{Text: "build"},
				{Text: "out"},
			},
		},
		{
			name:  "newline separates and flags",
			input: "build out\ntarget out",
			expected: []wordExpectation{
				{Text: "build"},
				{Text: "out"},
				{Text: "target", Newline: true},
				{Text: "out"},
			},
		},
		{
			name:  "tabs and carriage returns are blanks",
			input: "a\tb\r\nc",
			expected: []wordExpectation{
				{Text: "a"},
				{Text: "b"},
				{Text: "c", Newline: true},
			},
		},
		{
			name:  "comment runs to end of line",
			input: "a # ignored words\nb",
			expected: []wordExpectation{
				{Text: "a"},
				{Text: "b", Newline: true},
			},
		},
		{
			name:     "comment only input",
			input:    "# nothing here\n",
			expected: nil,
		},
		{
			name:  "comment terminates a word",
			input: "abc#def\ng",
			expected: []wordExpectation{
				{Text: "abc"},
				{Text: "g", Newline: true},
			},
		},
		{
			name:  "braces are words",
			input: "target out { }",
			expected: []wordExpectation{
				{Text: "target"},
				{Text: "out"},
				{Text: "{"},
				{Text: "}"},
			},
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
		{
			name:     "blank lines only",
			input:    "\n\n\t \n",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertWords(t, tt.input, nil, tt.expected)
		})
	}
}

func TestScanQuotedWords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []wordExpectation
	}{
		{
			name:  "quotes stripped, spaces kept",
			input: `cp "my file" out`,
			expected: []wordExpectation{
				{Text: "cp"},
				{Text: "my file"},
				{Text: "out"},
			},
		},
		{
			name:  "empty quoted word",
			input: `echo ""`,
			expected: []wordExpectation{
				{Text: "echo"},
				{Text: ""},
			},
		},
		{
			name:  "dollar in quotes is literal",
			input: `echo "$HOME"`,
			expected: []wordExpectation{
				{Text: "echo"},
				{Text: "$HOME"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertWords(t, tt.input, nil, tt.expected)
		})
	}
}

func TestQuotedWordIsFlagged(t *testing.T) {
	sc := New(source.New(`"{"`), &fakeEnv{})
	w, err := sc.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !w.Quoted {
		t.Errorf("Quoted = false for a quoted word")
	}
	if w.Text != "{" {
		t.Errorf("Text = %q, want %q", w.Text, "{")
	}
}

func TestLineNumbers(t *testing.T) {
	sc := New(source.New("a\nb\n\nc"), &fakeEnv{})
	wantLines := []int{1, 2, 4}
	for i, want := range wantLines {
		w, err := sc.Next()
		if err != nil {
			t.Fatalf("word %d: %v", i, err)
		}
		if w.Line != want {
			t.Errorf("word %d line = %d, want %d", i, w.Line, want)
		}
	}
}

func TestWordLengthBoundary(t *testing.T) {
	long := strings.Repeat("a", MaxWordLen)

	t.Run("exactly max succeeds", func(t *testing.T) {
		words := scanAll(t, long, nil)
		if len(words) != 1 || words[0].Text != long {
			t.Errorf("expected a single %d-byte word", MaxWordLen)
		}
	})

	t.Run("one over max is fatal", func(t *testing.T) {
		sc := New(source.New(long+"a"), &fakeEnv{})
		_, err := sc.Next()
		if !errors.IsKind(err, errors.KindLex) {
			t.Errorf("error = %v, want kind %q", err, errors.KindLex)
		}
	})

	t.Run("quoted overflow is fatal", func(t *testing.T) {
		sc := New(source.New(`"`+long+`a"`), &fakeEnv{})
		_, err := sc.Next()
		if !errors.IsKind(err, errors.KindLex) {
			t.Errorf("error = %v, want kind %q", err, errors.KindLex)
		}
	})
}

func TestUnterminatedQuote(t *testing.T) {
	for _, input := range []string{`"abc`, "\"abc\ndef\""} {
		sc := New(source.New(input), &fakeEnv{})
		_, err := sc.Next()
		if !errors.IsKind(err, errors.KindLex) {
			t.Errorf("input %q: error = %v, want kind %q", input, err, errors.KindLex)
		}
	}
}

func TestDollarEscape(t *testing.T) {
	assertWords(t, "$$foo", nil, []wordExpectation{{Text: "$foo"}})
	// No define lookup happens for the escaped form.
	env := &fakeEnv{defines: map[string]string{"foo": "nope"}}
	assertWords(t, "$$foo", env, []wordExpectation{{Text: "$foo"}})
}

func TestBuiltinTargetSubstitutions(t *testing.T) {
	env := &fakeEnv{scope: "app.elf", deps: []string{"main.o", "util.o"}}

	tests := []struct {
		input string
		want  string
	}{
		{"$(target)", "app.elf"},
		{"$(target_name)", "app"},
		{"$(target_ext)", "elf"},
		{"$(dep[0])", "main.o"},
		{"$(dep[1])", "util.o"},
		{"$(dep[0x1])", "util.o"},
		{"$(dep[01])", "util.o"},
		{"$(target_name).bak", "app.bak"},
		{"$(dep[0]).d", "main.o.d"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assertWords(t, tt.input, env, []wordExpectation{{Text: tt.want}})
		})
	}
}

func TestBuiltinTargetWithoutDot(t *testing.T) {
	env := &fakeEnv{scope: "app"}
	assertWords(t, "$(target_name)", env, []wordExpectation{{Text: "app"}})
	assertWords(t, "$(target_ext)", env, []wordExpectation{{Text: ""}})
}

func TestScopeSensitiveOutsideScope(t *testing.T) {
	for _, input := range []string{"$(target)", "$(target_name)", "$(target_ext)", "$(dep[0])"} {
		sc := New(source.New(input), &fakeEnv{})
		_, err := sc.Next()
		if !errors.IsKind(err, errors.KindScopeViolation) {
			t.Errorf("input %q: error = %v, want kind %q", input, err, errors.KindScopeViolation)
		}
	}
}

func TestDepIndexErrors(t *testing.T) {
	env := &fakeEnv{scope: "out", deps: []string{"in"}}

	t.Run("out of range", func(t *testing.T) {
		sc := New(source.New("$(dep[1])"), env)
		_, err := sc.Next()
		if !errors.IsKind(err, errors.KindIndexOutOfRange) {
			t.Errorf("error = %v, want kind %q", err, errors.KindIndexOutOfRange)
		}
	})

	t.Run("zero deps", func(t *testing.T) {
		sc := New(source.New("$(dep[0])"), &fakeEnv{scope: "out"})
		_, err := sc.Next()
		if !errors.IsKind(err, errors.KindIndexOutOfRange) {
			t.Errorf("error = %v, want kind %q", err, errors.KindIndexOutOfRange)
		}
	})

	t.Run("malformed index", func(t *testing.T) {
		sc := New(source.New("$(dep[x])"), env)
		_, err := sc.Next()
		if !errors.IsKind(err, errors.KindLex) {
			t.Errorf("error = %v, want kind %q", err, errors.KindLex)
		}
	})
}

func TestDefineExpansion(t *testing.T) {
	env := &fakeEnv{defines: map[string]string{
		"CC":    "cc",
		"FLAGS": "-O2 -Wall",
		"A":     "$B",
		"B":     "done",
	}}

	tests := []struct {
		name     string
		input    string
		expected []wordExpectation
	}{
		{
			name:     "simple",
			input:    "$CC",
			expected: []wordExpectation{{Text: "cc"}},
		},
		{
			name:  "multi word value retokenizes",
			input: "$CC $FLAGS -o out",
			expected: []wordExpectation{
				{Text: "cc"},
				{Text: "-O2"},
				{Text: "-Wall"},
				{Text: "-o"},
				{Text: "out"},
			},
		},
		{
			name:     "recursive expansion",
			input:    "$A",
			expected: []wordExpectation{{Text: "done"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertWords(t, tt.input, env, tt.expected)
		})
	}
}

func TestDefineExpansionRewritesBuffer(t *testing.T) {
	env := &fakeEnv{defines: map[string]string{"CC": "cc"}}
	buf := source.New("$CC -c main.c")
	sc := New(buf, env)

	w, err := sc.Next()
	if err != nil {
		t.Fatal(err)
	}
	if w.Text != "cc" {
		t.Errorf("first word = %q, want %q", w.Text, "cc")
	}
	if diff := cmp.Diff("cc -c main.c", buf.String()); diff != "" {
		t.Errorf("buffer after expansion (-want +got):\n%s", diff)
	}
}

func TestExpansionIsIdempotent(t *testing.T) {
	// Once no $NAME words remain, scanning the expanded text again
	// yields the same words.
	env := &fakeEnv{defines: map[string]string{"CC": "cc", "FLAGS": "-O2"}}
	buf := source.New("$CC $FLAGS -o out")
	sc := New(buf, env)
	var first []string
	for {
		w, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		first = append(first, w.Text)
	}

	expanded := buf.String()
	if strings.Contains(expanded, "$") {
		t.Fatalf("expanded text still contains $: %q", expanded)
	}
	var second []string
	for _, w := range scanAll(t, expanded, env) {
		second = append(second, w.Text)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("rescan mismatch (-first +second):\n%s", diff)
	}
}

func TestSelfReferentialDefine(t *testing.T) {
	env := &fakeEnv{defines: map[string]string{"A": "$A"}}
	sc := New(source.New("$A"), env)
	_, err := sc.Next()
	if !errors.IsKind(err, errors.KindLex) {
		t.Errorf("error = %v, want kind %q", err, errors.KindLex)
	}
}

func TestUndefinedSymbol(t *testing.T) {
	sc := New(source.New("$NOPE"), &fakeEnv{})
	_, err := sc.Next()
	if !errors.IsKind(err, errors.KindUndefinedSymbol) {
		t.Errorf("error = %v, want kind %q", err, errors.KindUndefinedSymbol)
	}
}

func TestStrayDollar(t *testing.T) {
	for _, input := range []string{"$", "$(bogus)"} {
		sc := New(source.New(input), &fakeEnv{})
		_, err := sc.Next()
		if !errors.IsKind(err, errors.KindLex) {
			t.Errorf("input %q: error = %v, want kind %q", input, err, errors.KindLex)
		}
	}
}

func TestNewlineFlagSurvivesExpansion(t *testing.T) {
	env := &fakeEnv{defines: map[string]string{"X": "y"}}
	words := scanAll(t, "a\n$X", env)
	want := []wordExpectation{
		{Text: "a"},
		{Text: "y", Newline: true},
	}
	if diff := cmp.Diff(want, words); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestScannerProgress(t *testing.T) {
	// Every word consumes at least one byte of source.
	input := "a bb ccc\nd"
	buf := source.New(input)
	sc := New(buf, &fakeEnv{})
	prev := -1
	for i := 0; ; i++ {
		_, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if sc.pos <= prev {
			t.Fatalf("word %d: no progress (pos %d -> %d)", i, prev, sc.pos)
		}
		prev = sc.pos
		if i > 100 {
			t.Fatal("scanner stuck")
		}
	}
}

func ExampleScanner_Next() {
	buf := source.New("build out # comment\n")
	sc := New(buf, &fakeEnv{})
	for {
		w, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			panic(err)
		}
		fmt.Println(w.Text)
	}
	// Output:
	// build
	// out
}
