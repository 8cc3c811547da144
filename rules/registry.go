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
	"sync/atomic"
)

/*
ClassDescriptor describes a registered class.
*/
type ClassDescriptor struct {
	Name       string   // Class name
	Parent     string   // Parent class (empty for root classes)
	Ancestors  []string // All ancestors starting with the parent
	Properties []string // Declared properties (empty means undeclared)
}

/*
HasProperty checks if a class declares a given property. Classes without
declared properties accept every property.
*/
func (cd *ClassDescriptor) HasProperty(prop string) bool {
	if len(cd.Properties) == 0 {
		return true
	}
	for _, p := range cd.Properties {
		if p == prop {
			return true
		}
	}
	return false
}

/*
registryTables are the lookup tables of a registry. Tables are never
modified once they are published.
*/
type registryTables struct {
	classes map[string]*ClassDescriptor  // Registered classes
	rules   map[string][]*RuleDefinition // Rules per class in definition order
	groups  map[string]*RuleGroupNode    // Group objects per class and rule
}

/*
copyTables returns a copy of the tables which can be modified.
*/
func (rt *registryTables) copyTables() *registryTables {
	ret := &registryTables{
		make(map[string]*ClassDescriptor, len(rt.classes)),
		make(map[string][]*RuleDefinition, len(rt.rules)),
		make(map[string]*RuleGroupNode, len(rt.groups)),
	}

	for k, v := range rt.classes {
		ret.classes[k] = v
	}
	for k, v := range rt.rules {
		ret.rules[k] = v
	}
	for k, v := range rt.groups {
		ret.groups[k] = v
	}

	return ret
}

/*
RuleRegistry holds all classes, rule definitions and group objects. Lookups
do not take any locks. Changes are serialized and published as a new set of
tables.
*/
type RuleRegistry struct {
	tables     atomic.Pointer[registryTables] // Current lookup tables
	writeLock  sync.Mutex                     // Lock for changes
	classLocks sync.Map                       // Critical sections per class reference node
}

/*
NewRuleRegistry creates a new empty registry.
*/
func NewRuleRegistry() *RuleRegistry {
	rr := &RuleRegistry{}

	rr.tables.Store(&registryTables{
		make(map[string]*ClassDescriptor),
		make(map[string][]*RuleDefinition),
		make(map[string]*RuleGroupNode),
	})

	return rr
}

/*
groupID returns the lookup key of a group.
*/
func groupID(class string, rule string) string {
	return class + "#" + rule
}

/*
RegisterClass registers a class with an optional parent class and an optional
list of declared properties. The ancestors of the class are computed once.
The rules of the parent are inherited by the new class.
*/
func (rr *RuleRegistry) RegisterClass(name string, parent string, properties ...string) error {
	if err := checkClassName(name); err != nil {
		return err
	}

	rr.writeLock.Lock()

	t := rr.tables.Load()

	cd := &ClassDescriptor{Name: name, Parent: parent,
		Properties: append([]string(nil), properties...)}

	if parent != "" {
		pcd, ok := t.classes[parent]

		if !ok {
			rr.writeLock.Unlock()
			return &RuleError{Type: ErrUnknownClass,
				Detail: fmt.Sprintf("Parent %v of class %v is not registered", parent, name)}
		}

		for _, a := range pcd.Ancestors {
			if a == name {
				rr.writeLock.Unlock()
				return &RuleError{Type: ErrInvalidDefinition,
					Detail: fmt.Sprintf("Class %v cannot inherit from its descendant %v", name, parent)}
			}
		}

		if parent == name {
			rr.writeLock.Unlock()
			return &RuleError{Type: ErrInvalidDefinition,
				Detail: fmt.Sprintf("Class %v cannot inherit from itself", name)}
		}

		cd.Ancestors = append([]string{parent}, pcd.Ancestors...)

		// Declared properties are inherited

		if len(pcd.Properties) > 0 {
			for _, p := range pcd.Properties {
				if !cd.HasProperty(p) || len(cd.Properties) == 0 {
					cd.Properties = append(cd.Properties, p)
				}
			}
		}
	}

	if old, ok := t.classes[name]; ok && old.Parent != parent {
		rr.writeLock.Unlock()
		return &RuleError{Type: ErrInvalidDefinition,
			Detail: fmt.Sprintf("Class %v is already registered with parent %v", name, old.Parent)}
	}

	nt := t.copyTables()
	nt.classes[name] = cd
	rr.tables.Store(nt)

	rr.writeLock.Unlock()

	if parent != "" {
		return rr.Inherit(parent, name)
	}

	return nil
}

/*
Class returns the descriptor of a registered class.
*/
func (rr *RuleRegistry) Class(name string) (*ClassDescriptor, bool) {
	cd, ok := rr.tables.Load().classes[name]
	return cd, ok
}

/*
Classes returns the names of all classes which are registered or have rules.
*/
func (rr *RuleRegistry) Classes() []string {
	t := rr.tables.Load()

	seen := make(map[string]bool)
	for c := range t.classes {
		seen[c] = true
	}
	for c := range t.rules {
		seen[c] = true
	}

	ret := make([]string, 0, len(seen))
	for c := range seen {
		ret = append(ret, c)
	}

	sort.Strings(ret)

	return ret
}

/*
Ancestors returns the ancestors of a class starting with its parent.
*/
func (rr *RuleRegistry) Ancestors(class string) []string {
	if cd, ok := rr.tables.Load().classes[class]; ok {
		return cd.Ancestors
	}
	return nil
}

/*
ClassChain returns a class followed by all its ancestors.
*/
func (rr *RuleRegistry) ClassChain(class string) []string {
	return append([]string{class}, rr.Ancestors(class)...)
}

/*
IsA checks if a class is a given class or one of its descendants.
*/
func (rr *RuleRegistry) IsA(class string, other string) bool {
	for _, c := range rr.ClassChain(class) {
		if c == other {
			return true
		}
	}
	return false
}

/*
HasRules checks if a class or one of its ancestors has rules.
*/
func (rr *RuleRegistry) HasRules(class string) bool {
	t := rr.tables.Load()

	if len(t.rules[class]) > 0 {
		return true
	}

	if cd, ok := t.classes[class]; ok {
		for _, a := range cd.Ancestors {
			if len(t.rules[a]) > 0 {
				return true
			}
		}
	}

	return false
}

/*
RulesFor returns the rules which are declared directly on a given class.
*/
func (rr *RuleRegistry) RulesFor(class string) []*RuleDefinition {
	return rr.tables.Load().rules[class]
}

/*
Rule returns a single rule of a class.
*/
func (rr *RuleRegistry) Rule(class string, name string) (*RuleDefinition, bool) {
	for _, rd := range rr.RulesFor(class) {
		if rd.Name == name {
			return rd, true
		}
	}
	return nil, false
}

/*
Group returns the group object of a rule.
*/
func (rr *RuleRegistry) Group(class string, rule string) *RuleGroupNode {
	return rr.tables.Load().groups[groupID(class, rule)]
}

/*
Groups returns the group objects of all rules of a class.
*/
func (rr *RuleRegistry) Groups(class string) []*RuleGroupNode {
	var ret []*RuleGroupNode

	t := rr.tables.Load()

	for _, rd := range t.rules[class] {
		ret = append(ret, t.groups[groupID(class, rd.Name)])
	}

	return ret
}

/*
isBulk checks if a given rule uses bulk updates. This is the case if the rule
is eligible, has no triggers and is the only rule of its class. Bulk nodes
join their group at commit time when there is no evaluation left to cascade
from.
*/
func (rr *RuleRegistry) isBulk(rd *RuleDefinition) bool {
	return rd.bulkEligible && len(rd.Triggers) == 0 && len(rr.RulesFor(rd.OwnerClass)) == 1
}

/*
Define adds a rule definition. A rule with the same name on the same class is
replaced. Returns the replaced definition or nil. Unregistered classes are
registered as root classes. A declared rule is copied onto all registered
descendants which do not declare or inherit a closer rule of the same name.
*/
func (rr *RuleRegistry) Define(rd *RuleDefinition) (*RuleDefinition, error) {
	rr.writeLock.Lock()
	defer rr.writeLock.Unlock()

	old, err := rr.define(rd, true)
	if err != nil || rd.origin != "" {
		return old, err
	}

	for _, sub := range rr.inheritingClasses(rd.OwnerClass, rd.Name) {
		if _, err := rr.define(rd.copyFor(sub), true); err != nil {
			return old, err
		}
	}

	return old, nil
}

/*
inheritingClasses returns all registered descendants of a class which inherit
a given rule from it. Must be called with the write lock held.
*/
func (rr *RuleRegistry) inheritingClasses(class string, rule string) []string {
	var ret []string

	t := rr.tables.Load()

	declares := func(c string) bool {
		for _, rd := range t.rules[c] {
			if rd.Name == rule && rd.origin == "" {
				return true
			}
		}
		return false
	}

	for name, cd := range t.classes {

		if declares(name) {
			continue
		}

		for _, a := range cd.Ancestors {
			if a == class {
				ret = append(ret, name)
				break
			} else if declares(a) {
				break
			}
		}
	}

	sort.Strings(ret)

	return ret
}

/*
define adds a rule definition. Must be called with the write lock held.
*/
func (rr *RuleRegistry) define(rd *RuleDefinition, replace bool) (*RuleDefinition, error) {
	var old *RuleDefinition

	t := rr.tables.Load()

	if cd, ok := t.classes[rd.OwnerClass]; ok {
		for _, prop := range rd.Properties() {
			if !cd.HasProperty(prop) {
				return nil, &RuleError{Type: ErrInvalidDefinition,
					Detail: fmt.Sprintf("Rule %v refers to undeclared property %v of class %v",
						rd.Name, prop, rd.OwnerClass)}
			}
		}
	}

	rules := t.rules[rd.OwnerClass]
	pos := -1

	for i, r := range rules {
		if r.Name == rd.Name {
			old, pos = r, i
			break
		}
	}

	if old != nil {
		if !replace {
			return old, nil
		}

		if old.Predicate.Type() != rd.Predicate.Type() {
			return nil, &RuleError{Type: ErrConflictingDefinition,
				Detail: fmt.Sprintf("Rule %v of class %v is already defined with a %v predicate",
					rd.Name, rd.OwnerClass, old.Predicate.Type())}
		}
	}

	nt := t.copyTables()

	if _, ok := nt.classes[rd.OwnerClass]; !ok {
		nt.classes[rd.OwnerClass] = &ClassDescriptor{Name: rd.OwnerClass}
	}

	newRules := append([]*RuleDefinition(nil), rules...)

	if pos == -1 {
		newRules = append(newRules, rd)
	} else {
		newRules[pos] = rd
	}

	nt.rules[rd.OwnerClass] = newRules

	gid := groupID(rd.OwnerClass, rd.Name)
	if _, ok := nt.groups[gid]; !ok {
		nt.groups[gid] = newRuleGroupNode(rd.OwnerClass, rd.Name, rr.classLock(rd.OwnerClass))
	}

	rr.tables.Store(nt)

	return old, nil
}

/*
Inherit copies all rules of a parent class onto a subclass. Rules which the
subclass declares itself are kept.
*/
func (rr *RuleRegistry) Inherit(parent string, subclass string) error {
	rr.writeLock.Lock()
	defer rr.writeLock.Unlock()

	t := rr.tables.Load()

	if _, ok := t.classes[parent]; !ok && len(t.rules[parent]) == 0 {
		return &RuleError{Type: ErrUnknownClass, Detail: parent}
	}

	for _, rd := range t.rules[parent] {
		if _, err := rr.define(rd.copyFor(subclass), false); err != nil {
			return err
		}
	}

	return nil
}

/*
Remove removes all rules of a class. Returns the group objects of the removed
rules which should be torn down.
*/
func (rr *RuleRegistry) Remove(class string) []*RuleGroupNode {
	return rr.remove(class, "")
}

/*
RemoveRule removes a single rule of a class. Returns the group object of the
removed rule or nil.
*/
func (rr *RuleRegistry) RemoveRule(class string, name string) *RuleGroupNode {
	if ret := rr.remove(class, name); len(ret) > 0 {
		return ret[0]
	}
	return nil
}

/*
remove removes rules of a class. An empty name removes all rules.
*/
func (rr *RuleRegistry) remove(class string, name string) []*RuleGroupNode {
	var ret []*RuleGroupNode
	var keep []*RuleDefinition

	rr.writeLock.Lock()
	defer rr.writeLock.Unlock()

	t := rr.tables.Load()
	nt := t.copyTables()

	for _, rd := range t.rules[class] {
		if name != "" && rd.Name != name {
			keep = append(keep, rd)
			continue
		}

		gid := groupID(class, rd.Name)
		ret = append(ret, nt.groups[gid])
		delete(nt.groups, gid)
	}

	if len(keep) > 0 {
		nt.rules[class] = keep
	} else {
		delete(nt.rules, class)
	}

	rr.tables.Store(nt)

	return ret
}

/*
classLock returns the critical section of a class reference node.
*/
func (rr *RuleRegistry) classLock(class string) *sync.Mutex {
	l, _ := rr.classLocks.LoadOrStore(class, &sync.Mutex{})
	return l.(*sync.Mutex)
}
