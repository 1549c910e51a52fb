// Package lexer yields one word at a time from a source buffer,
// stripping comments, honoring quoted strings and tracking line
// numbers. Define references and the scope-sensitive builtins are
// substituted transparently: a matched define rewrites the buffer at
// the word's own offset and the scanner rescans from the patch point,
// so an expansion may itself contain further expandable words.
package lexer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xmk-lang/xmk/pkgs/errors"
	"github.com/xmk-lang/xmk/pkgs/source"
)

// ASCII classification tables, in the manner of a hand-rolled scanner.
var (
	isBlank   [128]bool // word separators other than newline
	endsWord  [128]bool // any byte that terminates a bare word
)

func init() {
	for _, ch := range []byte{' ', '\t', '\r'} {
		isBlank[ch] = true
		endsWord[ch] = true
	}
	endsWord['\n'] = true
	endsWord['#'] = true
}

// Builtin word forms recognized after '$'.
const (
	builtinTarget     = "$(target)"
	builtinTargetName = "$(target_name)"
	builtinTargetExt  = "$(target_ext)"
	builtinDepPrefix  = "$(dep["
	builtinDepSuffix  = "])"
)

// Scanner tokenizes a source buffer.
type Scanner struct {
	buf  *source.Buffer
	env  Env
	pos  int // byte offset of the next unread byte
	line int // 1-based current line
}

// New creates a scanner over buf. env may be consulted on every word.
func New(buf *source.Buffer, env Env) *Scanner {
	return &Scanner{buf: buf, env: env, line: 1}
}

// Line returns the scanner's current line number.
func (s *Scanner) Line() int {
	return s.line
}

// maxExpansions bounds define rescans per word; a self-referential
// define would otherwise rewrite the buffer forever.
const maxExpansions = 1000

// Next returns the next word, or io.EOF once the input is exhausted.
// Returned words are owned by the caller.
func (s *Scanner) Next() (Word, error) {
	newline := false
	for expansions := 0; ; expansions++ {
		if expansions > maxExpansions {
			return Word{}, errors.NewLexError(s.line, "define expansion does not terminate")
		}
		s.skipBlanks(&newline)
		if s.buf.Byte(s.pos) == source.Sentinel && s.pos == s.buf.Len() {
			return Word{}, io.EOF
		}

		start := s.pos
		startLine := s.line
		text, quoted, err := s.scanWord()
		if err != nil {
			return Word{}, err
		}

		if !quoted && len(text) > 0 && text[0] == '$' {
			sub, rescan, err := s.substitute(text, start)
			if err != nil {
				return Word{}, err
			}
			if rescan {
				// Buffer was patched at the word's offset; rescan from
				// there so the expansion itself is tokenized.
				s.pos = start
				s.line = startLine
				continue
			}
			text = sub
		}

		return Word{Text: text, Quoted: quoted, Newline: newline, Line: startLine}, nil
	}
}

// skipBlanks advances over whitespace and comments. Crossing a newline
// sets *newline and bumps the line counter.
func (s *Scanner) skipBlanks(newline *bool) {
	for {
		ch := s.buf.Byte(s.pos)
		switch {
		case ch < 128 && isBlank[ch]:
			s.pos++
		case ch == '\n':
			s.line++
			*newline = true
			s.pos++
		case ch == '#':
			for s.buf.Byte(s.pos) != '\n' && s.pos < s.buf.Len() {
				s.pos++
			}
		default:
			return
		}
	}
}

// scanWord reads one word starting at s.pos. Quoted words lose their
// quotes and keep inner spaces.
func (s *Scanner) scanWord() (string, bool, error) {
	if s.buf.Byte(s.pos) == '"' {
		return s.scanQuoted()
	}

	start := s.pos
	for {
		ch := s.buf.Byte(s.pos)
		if s.pos >= s.buf.Len() || (ch < 128 && endsWord[ch]) {
			break
		}
		s.pos++
	}
	if s.pos-start > MaxWordLen {
		return "", false, errors.NewLexError(s.line, fmt.Sprintf("word exceeds %d bytes", MaxWordLen))
	}
	return s.slice(start, s.pos), false, nil
}

// scanQuoted reads a "…" word. The closing quote must appear on the
// same line.
func (s *Scanner) scanQuoted() (string, bool, error) {
	s.pos++ // opening quote
	start := s.pos
	for {
		ch := s.buf.Byte(s.pos)
		if s.pos >= s.buf.Len() || ch == '\n' {
			return "", false, errors.NewLexError(s.line, "unterminated quoted string")
		}
		if ch == '"' {
			break
		}
		s.pos++
	}
	if s.pos-start > MaxWordLen {
		return "", false, errors.NewLexError(s.line, fmt.Sprintf("word exceeds %d bytes", MaxWordLen))
	}
	text := s.slice(start, s.pos)
	s.pos++ // closing quote
	return text, true, nil
}

// substitute resolves a word beginning with '$'. It either returns the
// substituted text, or patches the buffer and asks for a rescan.
func (s *Scanner) substitute(word string, offset int) (text string, rescan bool, err error) {
	// $$X escapes to a literal $X with no define lookup.
	if strings.HasPrefix(word, "$$") {
		return word[1:], false, nil
	}

	if strings.HasPrefix(word, "$(") {
		text, err := s.builtin(word)
		return text, false, err
	}

	name := word[1:]
	if name == "" {
		return "", false, errors.NewLexError(s.line, "stray '$' in input")
	}
	if value, ok := s.env.Define(name); ok {
		s.buf.ExpandAt(offset, len(word), value)
		return "", true, nil
	}
	return "", false, errors.Newf(errors.KindUndefinedSymbol, "line %d: $%s is not a define or builtin", s.line, name)
}

// builtin resolves a word starting with one of the $(…) forms. Text
// after the closing paren is kept as a suffix, so $(target_name).bak
// works as expected.
func (s *Scanner) builtin(word string) (string, error) {
	switch {
	case strings.HasPrefix(word, builtinTarget):
		scope, err := s.requireScope(builtinTarget)
		if err != nil {
			return "", err
		}
		return scope + word[len(builtinTarget):], nil

	case strings.HasPrefix(word, builtinTargetName):
		scope, err := s.requireScope(builtinTargetName)
		if err != nil {
			return "", err
		}
		if i := strings.IndexByte(scope, '.'); i >= 0 {
			scope = scope[:i]
		}
		return scope + word[len(builtinTargetName):], nil

	case strings.HasPrefix(word, builtinTargetExt):
		scope, err := s.requireScope(builtinTargetExt)
		if err != nil {
			return "", err
		}
		ext := ""
		if i := strings.IndexByte(scope, '.'); i >= 0 {
			ext = scope[i+1:]
		}
		return ext + word[len(builtinTargetExt):], nil

	case strings.HasPrefix(word, builtinDepPrefix):
		return s.substituteDep(word)

	default:
		return "", errors.NewLexError(s.line, fmt.Sprintf("unknown builtin %q", word))
	}
}

// substituteDep resolves $(dep[N]). N accepts the 0x/0 base prefixes.
func (s *Scanner) substituteDep(word string) (string, error) {
	if _, ok := s.env.ScopeName(); !ok {
		return "", errors.Newf(errors.KindScopeViolation, "line %d: %s used outside a target block", s.line, word)
	}
	end := strings.Index(word, builtinDepSuffix)
	if end < 0 {
		return "", errors.NewLexError(s.line, fmt.Sprintf("malformed dependency reference %q", word))
	}
	num := word[len(builtinDepPrefix):end]
	n, err := strconv.ParseInt(num, 0, 32)
	if err != nil {
		return "", errors.NewLexError(s.line, fmt.Sprintf("bad dependency index %q in %s", num, word))
	}
	dep, err := s.env.Dependency(int(n))
	if err != nil {
		return "", err
	}
	return dep + word[end+len(builtinDepSuffix):], nil
}

// requireScope fetches the current scope name or fails the scan.
func (s *Scanner) requireScope(word string) (string, error) {
	scope, ok := s.env.ScopeName()
	if !ok {
		return "", errors.Newf(errors.KindScopeViolation, "line %d: %s used outside a target block", s.line, word)
	}
	return scope, nil
}

func (s *Scanner) slice(start, end int) string {
	b := make([]byte, end-start)
	for i := start; i < end; i++ {
		b[i-start] = s.buf.Byte(i)
	}
	return string(b)
}
