// Package parser drives the directive table in rules.go over the word
// stream. The engine is deliberately table-driven: a directive is added
// by editing the table, not the driver. The driver keeps a small parse
// stack (nesting runs at most two levels deep: a target block holding a
// dependency or command block) and invokes per-rule callbacks to
// populate the model store.
package parser

import (
	"fmt"
	"io"

	"github.com/xmk-lang/xmk/pkgs/errors"
	"github.com/xmk-lang/xmk/pkgs/lexer"
	"github.com/xmk-lang/xmk/pkgs/model"
	"github.com/xmk-lang/xmk/pkgs/source"
)

// maxDepth caps block nesting: target { depends on { … } }.
const maxDepth = 2

// frame is one active rule on the parse stack.
type frame struct {
	rule       *Rule
	recipeIdx  int
	stepIdx    int
	keywordIdx int
	inBlock    bool     // the current LIST/NESTED step has consumed its '{'
	symbols    []string // SYMBOL captures, in order
	list       []string // frame-local LIST captures (define values)
}

func (f *frame) step() Step {
	return f.rule.Recipes[f.recipeIdx][f.stepIdx]
}

// Parser consumes words and populates a model store.
type Parser struct {
	store     *model.Store
	rules     []*Rule
	stack     []*frame
	depth     int
	curTarget int // index of the most recently registered target
	line      int // line of the word being dispatched
}

// Parse tokenizes and parses the buffer into a model store. Define
// expansion mutates the buffer as a side effect, so after a successful
// parse the buffer holds the program text with every define reference
// inlined. The $(…) builtins are resolved per word and stay in the
// buffer as written.
func Parse(buf *source.Buffer) (*model.Store, error) {
	store := model.NewStore()
	p := &Parser{store: store, rules: ruleTable(), curTarget: -1}
	sc := lexer.New(buf, store)

	for {
		w, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		p.line = w.Line
		if err := p.dispatch(w); err != nil {
			return nil, err
		}
	}
	if len(p.stack) > 0 {
		f := p.stack[len(p.stack)-1]
		return nil, errors.NewLexError(p.line, fmt.Sprintf("unexpected end of input inside %s", f.rule.Name))
	}
	return store, nil
}

func (p *Parser) top() *frame {
	return p.stack[len(p.stack)-1]
}

// dispatch routes one word: to the open frame, or to the rule search
// when no frame is open or the open frame is a block awaiting inner
// directives.
func (p *Parser) dispatch(w lexer.Word) error {
	if len(p.stack) == 0 {
		return p.search(w)
	}

	f := p.top()
	if f.step() == StepNested && f.inBlock {
		if !w.Quoted && w.Text == "}" {
			p.depth--
			f.inBlock = false
			f.stepIdx++
			return p.finishIfEnd()
		}
		return p.search(w)
	}
	return p.feed(w)
}

// search matches a word against the rule table in declaration order.
// The first rule whose leading keyword equals the word claims the
// parse.
func (p *Parser) search(w lexer.Word) error {
	if !w.Quoted {
		for _, r := range p.rules {
			if r.Keywords[0] == w.Text {
				p.stack = append(p.stack, &frame{rule: r})
				return p.feed(w)
			}
		}
	}
	return errors.NewLexError(w.Line, fmt.Sprintf("unexpected word %q, expected a directive", w.Text))
}

// feed advances the open frame's recipe by one word.
func (p *Parser) feed(w lexer.Word) error {
	f := p.top()
	switch f.step() {
	case StepKeyword:
		if !w.Quoted && w.Text == f.rule.Keywords[f.keywordIdx] {
			f.keywordIdx++
			f.stepIdx++
			return p.finishIfEnd()
		}
		return p.nextRecipe(w)

	case StepSymbol:
		// Braces are structural and never symbols; a brace here sends
		// the rule to its next alternative recipe.
		if !w.Quoted && (w.Text == "{" || w.Text == "}") {
			return p.nextRecipe(w)
		}
		if f.rule.OnSymbol != nil {
			if err := f.rule.OnSymbol(p, f, w); err != nil {
				return err
			}
		} else {
			f.symbols = append(f.symbols, w.Text)
		}
		f.stepIdx++
		return p.finishIfEnd()

	case StepList:
		return p.feedList(w)

	case StepNested:
		if !w.Quoted && w.Text == "{" {
			if err := p.pushLevel(w); err != nil {
				return err
			}
			f.inBlock = true
			if f.rule.OnBlockOpen != nil {
				return f.rule.OnBlockOpen(p, f)
			}
			return nil
		}
		return p.nextRecipe(w)

	default:
		return errors.NewLexError(w.Line, fmt.Sprintf("unexpected word %q in %s", w.Text, f.rule.Name))
	}
}

// feedList implements the list handler: '{' opens the block, '}'
// closes it, words separated by a newline become distinct entries, and
// words on the same line as the previous entry are concatenated with a
// single space. An unquoted '{' inside an open list is ordinary text;
// nesting never goes past the list itself.
func (p *Parser) feedList(w lexer.Word) error {
	f := p.top()
	if !f.inBlock {
		if !w.Quoted && w.Text == "{" {
			if err := p.pushLevel(w); err != nil {
				return err
			}
			f.inBlock = true
			if f.rule.OnBlockOpen != nil {
				return f.rule.OnBlockOpen(p, f)
			}
			return nil
		}
		return p.nextRecipe(w)
	}

	if !w.Quoted && w.Text == "}" {
		p.depth--
		f.inBlock = false
		f.stepIdx++
		return p.finishIfEnd()
	}

	list, err := f.rule.List(p, f)
	if err != nil {
		return err
	}
	if len(*list) == 0 || w.Newline {
		*list = append(*list, w.Text)
	} else {
		(*list)[len(*list)-1] += " " + w.Text
	}
	return nil
}

// nextRecipe discards the frame's current recipe and retries the word
// against the next alternative. Recipes agree positionally, so the
// step and keyword cursors carry over.
func (p *Parser) nextRecipe(w lexer.Word) error {
	f := p.top()
	if f.recipeIdx+1 >= len(f.rule.Recipes) {
		return errors.NewLexError(w.Line, fmt.Sprintf("unexpected word %q in %s", w.Text, f.rule.Name))
	}
	f.recipeIdx++
	return p.feed(w)
}

// finishIfEnd completes the open frame once its recipe reaches END.
func (p *Parser) finishIfEnd() error {
	f := p.top()
	if f.step() != StepEnd {
		return nil
	}
	if f.rule.OnEnd != nil {
		if err := f.rule.OnEnd(p, f); err != nil {
			return err
		}
	}
	p.stack = p.stack[:len(p.stack)-1]
	return nil
}

func (p *Parser) pushLevel(w lexer.Word) error {
	if p.depth >= maxDepth {
		return errors.NewLexError(w.Line, fmt.Sprintf("blocks nest at most %d levels deep", maxDepth))
	}
	p.depth++
	return nil
}

// scopeTarget resolves the target the current block accumulates into.
func (p *Parser) scopeTarget(directive string) (*model.Target, error) {
	if p.curTarget < 0 || p.curTarget >= len(p.store.Targets) {
		return nil, errors.NewLexError(p.line, fmt.Sprintf("%q outside a target block", directive))
	}
	return p.store.Targets[p.curTarget], nil
}
