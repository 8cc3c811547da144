/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package rules

import (
	"fmt"
	"sort"

	"github.com/krotik/ecal/interpreter"
	"github.com/krotik/ecal/parser"
	"github.com/krotik/ecal/scope"
	ecalutil "github.com/krotik/ecal/util"
	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/graph/data"
)

/*
PredicateType is the variant of a predicate
*/
type PredicateType int

/*
Known predicate variants
*/
const (
	PredicateNone    PredicateType = iota // No predicate - every node qualifies
	PredicateRaw                          // Function on the raw node
	PredicateWrapped                      // Function on a wrapped object
	PredicateScript                       // ECAL expression on the raw node
)

/*
String returns a string representation of a predicate type.
*/
func (pt PredicateType) String() string {
	switch pt {
	case PredicateRaw:
		return "raw"
	case PredicateWrapped:
		return "wrapped"
	case PredicateScript:
		return "script"
	}
	return "none"
}

/*
Predicate decides if a node is a member of a group. The variant of a
predicate is fixed when it is created.
*/
type Predicate struct {
	ptype   PredicateType
	raw     func(node data.Node) (bool, error)
	wrapped func(obj *Object) (bool, error)
	script  *scriptProgram
}

/*
RawNodePredicate creates a predicate which is evaluated against the raw node.
*/
func RawNodePredicate(f func(node data.Node) (bool, error)) *Predicate {
	return &Predicate{ptype: PredicateRaw, raw: f}
}

/*
WrappedObjectPredicate creates a predicate which is evaluated against a
wrapped object. The object gives access to the relationships of the node.
*/
func WrappedObjectPredicate(f func(obj *Object) (bool, error)) *Predicate {
	return &Predicate{ptype: PredicateWrapped, wrapped: f}
}

/*
ScriptPredicate creates a predicate from an ECAL expression. The expression
can access the attributes of the node through the variable node
(e.g. node.age < 5). The expression is parsed once.
*/
func ScriptPredicate(code string) (*Predicate, error) {
	prog, err := compileScript(code)
	if err != nil {
		return nil, err
	}
	return &Predicate{ptype: PredicateScript, script: prog}, nil
}

/*
Type returns the variant of this predicate. A nil predicate has the
type PredicateNone.
*/
func (p *Predicate) Type() PredicateType {
	if p == nil {
		return PredicateNone
	}
	return p.ptype
}

/*
Code returns the code of a script predicate.
*/
func (p *Predicate) Code() string {
	if p == nil || p.script == nil {
		return ""
	}
	return p.script.code
}

/*
Properties returns the node attributes a predicate is known to read. Only
script predicates can be inspected.
*/
func (p *Predicate) Properties() []string {
	if p == nil || p.script == nil {
		return nil
	}
	return p.script.properties
}

/*
Evaluate evaluates this predicate for a given node. The given graph manager
is used by wrapped objects to follow relationships.
*/
func (p *Predicate) Evaluate(gm *graph.Manager, node data.Node) (bool, error) {
	var res bool
	var err error

	switch p.Type() {
	case PredicateNone:
		return true, nil
	case PredicateRaw:
		res, err = p.raw(node)
	case PredicateWrapped:
		res, err = p.wrapped(NewObject(gm, node))
	case PredicateScript:
		res, err = p.script.eval(node)
	}

	if err != nil && !IsRuleError(err, ErrEvaluation) {
		err = &RuleError{Type: ErrEvaluation,
			Detail: fmt.Sprintf("Predicate failed for %v %v: %v", node.Kind(), node.Key(), err),
			Cause:  err}
	}

	return res, err
}

// Script predicates
// =================

/*
scriptProgram is a parsed ECAL expression
*/
type scriptProgram struct {
	code       string          // Source code
	ast        *parser.ASTNode // Parsed and validated AST
	properties []string        // Node attributes which are read by the expression
}

/*
compileScript parses and validates an ECAL expression.
*/
func compileScript(code string) (*scriptProgram, error) {
	rtp := interpreter.NewECALRuntimeProvider("rulegraph", nil, ecalutil.NewNullLogger())

	ast, err := parser.ParseWithRuntime("predicate", code, rtp)

	if err == nil {
		err = ast.Runtime.Validate()
	}

	if err != nil {
		return nil, &RuleError{Type: ErrInvalidDefinition,
			Detail: "Invalid predicate script: " + err.Error(), Cause: err}
	}

	props := make(map[string]bool)
	collectNodeProperties(ast, props)

	prog := &scriptProgram{code: code, ast: ast}

	for prop := range props {
		prog.properties = append(prog.properties, prop)
	}

	sort.Strings(prog.properties)

	return prog, nil
}

/*
collectNodeProperties collects all attributes which are accessed through the
node variable.
*/
func collectNodeProperties(ast *parser.ASTNode, props map[string]bool) {
	if ast.Name == parser.NodeIDENTIFIER && ast.Token != nil && ast.Token.Val == "node" &&
		len(ast.Children) > 0 && ast.Children[0].Name == parser.NodeIDENTIFIER {

		props[ast.Children[0].Token.Val] = true
	}

	for _, c := range ast.Children {
		collectNodeProperties(c, props)
	}
}

/*
eval evaluates the expression against a given node.
*/
func (sp *scriptProgram) eval(node data.Node) (bool, error) {
	vs := scope.NewScope(scope.GlobalScope)

	nodeData := make(map[string]interface{}, len(node.Data()))
	for k, v := range node.Data() {

		// All numbers in ECAL are floats

		if num, _, ok := toNumber(v); ok && v != nil {
			v = toFloat(num)
		}

		nodeData[k] = v
	}

	vs.SetValue("node", scope.ConvertJSONToECALObject(nodeData))
	vs.SetValue("class", node.Class())

	res, err := sp.ast.Runtime.Eval(vs, make(map[string]interface{}), 0)
	if err != nil {
		return false, err
	}

	if b, ok := res.(bool); ok {
		return b, nil
	}

	return false, &RuleError{Type: ErrEvaluation,
		Detail: fmt.Sprintf("Predicate script did not return a boolean: %v", res)}
}
