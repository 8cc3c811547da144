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
	"sync"

	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/graph/data"
)

/*
AggregateFunction is an incrementally maintained fold over the members of a
group. Each call mutates exactly one attribute of the group anchor through
the transaction of the anchor.
*/
type AggregateFunction interface {

	/*
		Name returns the name of the function (e.g. count or sum).
	*/
	Name() string

	/*
		Property returns the node attribute the function is bound to. Functions
		which ignore values return an empty string.
	*/
	Property() string

	/*
		Add adds the contribution of a new member.
	*/
	Add(rule string, group *GroupAnchor, value interface{}) error

	/*
		Update replaces the contribution of an existing member.
	*/
	Update(rule string, group *GroupAnchor, oldValue interface{}, newValue interface{}) error

	/*
		Delete removes the contribution of a former member.
	*/
	Delete(rule string, group *GroupAnchor, value interface{}) error

	/*
		Value returns the current aggregate value.
	*/
	Value(group *GroupAnchor, rule string) interface{}
}

/*
PropertyName returns the name of the anchor attribute which holds the value
of a given function for a given rule.
*/
func PropertyName(fn AggregateFunction, rule string) string {
	if prop := fn.Property(); prop != "" {
		return fmt.Sprintf("%v_%v_%v", fn.Name(), rule, prop)
	}
	return fmt.Sprintf("%v_%v", fn.Name(), rule)
}

// Group anchor
// ============

/*
GroupAnchor gives aggregate functions access to the anchor node of a group.
*/
type GroupAnchor struct {
	node    data.Node                            // Last known state of the anchor node
	trans   graph.Trans                          // Transaction for changes (nil for read-only access)
	changed func(attr string, value interface{}) // Optional callback for written values
}

/*
Key returns the key of the anchor node.
*/
func (ga *GroupAnchor) Key() string {
	return ga.node.Key()
}

/*
Get returns an attribute of the anchor node.
*/
func (ga *GroupAnchor) Get(attr string) interface{} {
	return ga.node.Attr(attr)
}

/*
Set writes an attribute of the anchor node.
*/
func (ga *GroupAnchor) Set(attr string, value interface{}) error {
	if ga.trans == nil {
		return &RuleError{Type: ErrInvalidValue,
			Detail: "Group anchor " + ga.node.Key() + " is read-only"}
	}

	update := data.NewGraphNode()
	update.SetAttr(data.NodeKey, ga.node.Key())
	update.SetAttr(data.NodeKind, ga.node.Kind())
	update.SetAttr(attr, value)

	if err := ga.trans.UpdateNode(update); err != nil {
		return err
	}

	ga.node.SetAttr(attr, value)

	if ga.changed != nil {
		ga.changed(attr, value)
	}

	return nil
}

// Count function
// ==============

/*
countFunction counts the members of a group.
*/
type countFunction struct {
}

/*
Count returns a function which counts the members of a group.
*/
func Count() AggregateFunction {
	return &countFunction{}
}

/*
Name returns the name of the function.
*/
func (f *countFunction) Name() string {
	return "count"
}

/*
Property returns an empty string since count ignores values.
*/
func (f *countFunction) Property() string {
	return ""
}

/*
Add increments the count.
*/
func (f *countFunction) Add(rule string, group *GroupAnchor, value interface{}) error {
	return f.adjust(rule, group, 1)
}

/*
Update does nothing since the membership did not change.
*/
func (f *countFunction) Update(rule string, group *GroupAnchor, oldValue interface{}, newValue interface{}) error {
	return nil
}

/*
Delete decrements the count.
*/
func (f *countFunction) Delete(rule string, group *GroupAnchor, value interface{}) error {
	return f.adjust(rule, group, -1)
}

/*
Value returns the current count.
*/
func (f *countFunction) Value(group *GroupAnchor, rule string) interface{} {
	num, isFloat, ok := toNumber(group.Get(PropertyName(f, rule)))
	if !ok {
		return int64(0)
	} else if isFloat {
		return int64(num.(float64))
	}
	return num.(int64)
}

/*
adjust adds a delta to the stored count. Used also by bulk updates.
*/
func (f *countFunction) adjust(rule string, group *GroupAnchor, delta int64) error {
	return group.Set(PropertyName(f, rule), f.Value(group, rule).(int64)+delta)
}

// Sum function
// ============

/*
sumFunction sums up a numeric attribute of all members.
*/
type sumFunction struct {
	property string
}

/*
Sum returns a function which sums up a given attribute over all members of a
group. Members which do not have the attribute contribute 0.
*/
func Sum(property string) AggregateFunction {
	return &sumFunction{property}
}

/*
Name returns the name of the function.
*/
func (f *sumFunction) Name() string {
	return "sum"
}

/*
Property returns the bound attribute.
*/
func (f *sumFunction) Property() string {
	return f.property
}

/*
Add adds a value to the sum.
*/
func (f *sumFunction) Add(rule string, group *GroupAnchor, value interface{}) error {
	return f.apply(rule, group, nil, value)
}

/*
Update replaces an old value with a new value.
*/
func (f *sumFunction) Update(rule string, group *GroupAnchor, oldValue interface{}, newValue interface{}) error {
	return f.apply(rule, group, oldValue, newValue)
}

/*
Delete subtracts a value from the sum.
*/
func (f *sumFunction) Delete(rule string, group *GroupAnchor, value interface{}) error {
	return f.apply(rule, group, value, nil)
}

/*
Value returns the current sum.
*/
func (f *sumFunction) Value(group *GroupAnchor, rule string) interface{} {
	num, _, ok := toNumber(group.Get(PropertyName(f, rule)))
	if !ok {
		return int64(0)
	}
	return num
}

/*
apply subtracts a value and adds another value.
*/
func (f *sumFunction) apply(rule string, group *GroupAnchor, sub interface{}, add interface{}) error {

	subNum, _, ok := toNumber(sub)
	if !ok {
		return f.invalidValue(sub)
	}

	addNum, _, ok := toNumber(add)
	if !ok {
		return f.invalidValue(add)
	}

	res := addNumbers(addNumbers(f.Value(group, rule), negate(subNum)), addNum)

	return group.Set(PropertyName(f, rule), res)
}

/*
invalidValue returns an error for a non-numeric value.
*/
func (f *sumFunction) invalidValue(val interface{}) error {
	return &RuleError{Type: ErrInvalidValue,
		Detail: fmt.Sprintf("Value of %v is not numeric: %v (%T)", f.property, val, val)}
}

// Numbers
// =======

/*
toNumber converts a given value into an int64 or a float64. A nil value is
0. Returns if the value is a float and if the conversion was successful.
Strings are not converted.
*/
func toNumber(val interface{}) (interface{}, bool, bool) {
	switch v := val.(type) {
	case nil:
		return int64(0), false, true
	case int:
		return int64(v), false, true
	case int8:
		return int64(v), false, true
	case int16:
		return int64(v), false, true
	case int32:
		return int64(v), false, true
	case int64:
		return v, false, true
	case uint:
		return int64(v), false, true
	case uint8:
		return int64(v), false, true
	case uint16:
		return int64(v), false, true
	case uint32:
		return int64(v), false, true
	case uint64:
		return int64(v), false, true
	case float32:
		return float64(v), true, true
	case float64:
		return v, true, true
	}

	return nil, false, false
}

/*
toFloat converts a converted number into a float64.
*/
func toFloat(num interface{}) float64 {
	if i, ok := num.(int64); ok {
		return float64(i)
	}
	return num.(float64)
}

/*
addNumbers adds two converted numbers. The result is a float64 if one of the
numbers is a float64.
*/
func addNumbers(a interface{}, b interface{}) interface{} {
	ia, aIsInt := a.(int64)
	ib, bIsInt := b.(int64)

	if aIsInt && bIsInt {
		return ia + ib
	}

	return toFloat(a) + toFloat(b)
}

/*
negate negates a converted number.
*/
func negate(num interface{}) interface{} {
	if i, ok := num.(int64); ok {
		return -i
	}
	return -num.(float64)
}

// Function registry
// =================

/*
FunctionFactory creates a new aggregate function bound to a given property.
*/
type FunctionFactory func(property string) (AggregateFunction, error)

/*
functionFactories holds all known aggregate functions
*/
var functionFactories = map[string]FunctionFactory{
	"count": func(property string) (AggregateFunction, error) {
		if property != "" {
			return nil, &RuleError{Type: ErrInvalidDefinition,
				Detail: "Function count does not take a property: " + property}
		}
		return Count(), nil
	},
	"sum": func(property string) (AggregateFunction, error) {
		if property == "" {
			return nil, &RuleError{Type: ErrInvalidDefinition,
				Detail: "Function sum requires a property"}
		}
		return Sum(property), nil
	},
}

/*
functionFactoriesLock protects the function registry
*/
var functionFactoriesLock = &sync.RWMutex{}

/*
RegisterFunction registers a new aggregate function which can then be
referenced by name.
*/
func RegisterFunction(name string, factory FunctionFactory) {
	functionFactoriesLock.Lock()
	defer functionFactoriesLock.Unlock()

	functionFactories[name] = factory
}

/*
NewFunction creates an aggregate function from its name and bound property.
*/
func NewFunction(name string, property string) (AggregateFunction, error) {
	functionFactoriesLock.RLock()
	factory, ok := functionFactories[name]
	functionFactoriesLock.RUnlock()

	if !ok {
		return nil, &RuleError{Type: ErrUnknownFunction, Detail: name}
	}

	return factory(property)
}

/*
FunctionNames returns the names of all known aggregate functions.
*/
func FunctionNames() []string {
	functionFactoriesLock.RLock()
	defer functionFactoriesLock.RUnlock()

	ret := make([]string, 0, len(functionFactories))
	for name := range functionFactories {
		ret = append(ret, name)
	}

	sort.Strings(ret)

	return ret
}
