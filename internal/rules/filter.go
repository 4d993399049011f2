// Package rules compiles the dashboard notification filter, an expr-lang
// expression evaluated against each live scan.
package rules

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/b0ase/cardlog/internal/model"
)

// Env is what a filter expression can see, e.g.
//
//	user != "Unknown" && today
//	uid startsWith "04" || user in ["alice", "bob"]
type Env struct {
	ID    int64  `expr:"id"`
	UID   string `expr:"uid"`
	User  string `expr:"user"`
	Time  string `expr:"time"`
	Today bool   `expr:"today"`
}

// Filter is a compiled expression. A nil *Filter matches everything.
type Filter struct {
	Source  string
	Program *vm.Program
}

// Compile parses src. An empty or blank expression yields a nil filter.
func Compile(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile notify filter %q: %w", src, err)
	}
	return &Filter{Source: src, Program: program}, nil
}

// Match evaluates the filter for rec. Runtime errors count as no match.
func (f *Filter) Match(rec model.LogRecord, today bool) bool {
	if f == nil {
		return true
	}
	out, err := expr.Run(f.Program, Env{
		ID:    rec.ID,
		UID:   rec.UID,
		User:  rec.User,
		Time:  rec.Time,
		Today: today,
	})
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}
