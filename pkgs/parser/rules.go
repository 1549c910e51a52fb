package parser

import (
	"strings"

	"github.com/xmk-lang/xmk/pkgs/errors"
	"github.com/xmk-lang/xmk/pkgs/lexer"
)

// Step is one element of a recipe.
type Step int

const (
	StepKeyword Step = iota // match the rule's next keyword exactly
	StepSymbol              // capture one word
	StepList                // capture a braced, newline-separated list
	StepNested              // a braced block containing further directives
	StepEnd                 // rule complete
)

var stepNames = [...]string{
	StepKeyword: "KEYWORD",
	StepSymbol:  "SYMBOL",
	StepList:    "LIST",
	StepNested:  "NESTED",
	StepEnd:     "END",
}

func (s Step) String() string {
	if int(s) < len(stepNames) {
		return stepNames[s]
	}
	return "Step(?)"
}

// Recipe is one ordered alternative for parsing a rule.
type Recipe []Step

// Rule describes one directive of the language. Rules are pure data;
// the driver in parser.go interprets them. Alternative recipes are
// tried in declaration order and must agree positionally on keywords.
type Rule struct {
	Name     string
	Keywords []string
	Recipes  []Recipe

	// OnSymbol is invoked for every word captured by a SYMBOL step.
	OnSymbol func(p *Parser, f *frame, w lexer.Word) error
	// OnBlockOpen is invoked when a '{' opens this rule's LIST or
	// NESTED step.
	OnBlockOpen func(p *Parser, f *frame) error
	// List returns the sequence a LIST step accumulates into.
	List func(p *Parser, f *frame) (*[]string, error)
	// OnEnd is invoked when the rule reaches its END step.
	OnEnd func(p *Parser, f *frame) error
}

// The directive table. Order matters: the first rule whose leading
// keyword matches a word in searching state claims the parse.
func ruleTable() []*Rule {
	return []*Rule{buildRule, targetRule, defineRule, createdRule, dependsRule}
}

var buildRule = &Rule{
	Name:     "BUILD",
	Keywords: []string{"build"},
	Recipes:  []Recipe{{StepKeyword, StepSymbol, StepEnd}},
	OnSymbol: func(p *Parser, f *frame, w lexer.Word) error {
		return p.store.SetBuildTarget(w.Text)
	},
}

var targetRule = &Rule{
	Name:     "TARGET",
	Keywords: []string{"target"},
	Recipes:  []Recipe{{StepKeyword, StepSymbol, StepNested, StepEnd}},
	OnSymbol: func(p *Parser, f *frame, w lexer.Word) error {
		i, err := p.store.AddTarget(w.Text)
		if err != nil {
			return err
		}
		p.curTarget = i
		return nil
	},
	OnBlockOpen: func(p *Parser, f *frame) error {
		// Entering `target NAME {`: the target's dependency and
		// command slots exist from registration; the name becomes the
		// scope the tokenizer resolves $(target*) and $(dep[N])
		// against. Scope is not unset when the block closes.
		p.store.EnterScope(p.store.Targets[p.curTarget].Name)
		return nil
	},
}

var defineRule = &Rule{
	Name:     "DEFINE_AS",
	Keywords: []string{"define", "as"},
	Recipes: []Recipe{
		{StepKeyword, StepSymbol, StepKeyword, StepSymbol, StepEnd},
		{StepKeyword, StepList, StepKeyword, StepSymbol, StepEnd},
	},
	OnSymbol: func(p *Parser, f *frame, w lexer.Word) error {
		f.symbols = append(f.symbols, w.Text)
		return nil
	},
	List: func(p *Parser, f *frame) (*[]string, error) {
		return &f.list, nil
	},
	OnEnd: func(p *Parser, f *frame) error {
		// `define NAME as VALUE`, or `define { W… } as NAME` where the
		// braced words joined by spaces form the value.
		if len(f.list) > 0 {
			if len(f.symbols) < 1 {
				return errors.NewLexError(p.line, "define is missing its name")
			}
			p.store.AddDefine(f.symbols[0], strings.Join(f.list, " "))
			return nil
		}
		if len(f.symbols) < 2 {
			return errors.NewLexError(p.line, "define is missing its value")
		}
		p.store.AddDefine(f.symbols[0], f.symbols[1])
		return nil
	},
}

var createdRule = &Rule{
	Name:     "CREATED_USING",
	Keywords: []string{"created", "using"},
	Recipes:  []Recipe{{StepKeyword, StepKeyword, StepList, StepEnd}},
	List: func(p *Parser, f *frame) (*[]string, error) {
		t, err := p.scopeTarget("created using")
		if err != nil {
			return nil, err
		}
		return &t.Commands, nil
	},
}

var dependsRule = &Rule{
	Name:     "DEPENDS_ON",
	Keywords: []string{"depends", "on"},
	Recipes:  []Recipe{{StepKeyword, StepKeyword, StepList, StepEnd}},
	List: func(p *Parser, f *frame) (*[]string, error) {
		t, err := p.scopeTarget("depends on")
		if err != nil {
			return nil, err
		}
		return &t.Deps, nil
	},
}
