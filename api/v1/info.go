/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package v1

import (
	"net/http"

	"github.com/krotik/rulegraph/api"
	"github.com/krotik/rulegraph/rules"
)

/*
EndpointInfoQuery is the info endpoint URL (rooted). Handles everything under info/...
*/
const EndpointInfoQuery = api.APIRoot + APIv1 + "/info/"

/*
InfoEndpointInst creates a new endpoint handler.
*/
func InfoEndpointInst() api.RestEndpointHandler {
	return &infoEndpoint{}
}

/*
Handler object for info queries.
*/
type infoEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandleGET returns store statistics, details of a node kind or the group
sizes of all rules which apply to a class.
*/
func (ie *infoEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {

	if !checkResources(w, resources, 0, 2, "") {
		return
	}

	if len(resources) == 0 {
		writeJSON(w, storeInfo())
		return
	}

	infoType := resources[0]

	if infoType != "kind" && infoType != "class" {
		http.Error(w, "Unknown info type "+infoType, http.StatusBadRequest)
		return
	}

	if len(resources) == 1 {
		if infoType == "class" {
			http.Error(w, "Missing class", http.StatusBadRequest)
		} else {
			http.Error(w, "Missing node kind", http.StatusBadRequest)
		}
		return
	}

	name := resources[1]

	if infoType == "class" {
		if !checkEngine(w) {
			return
		}

		data, err := classInfo(name)
		if err != nil {
			http.Error(w, err.Error(), ruleErrorStatus(err))
			return
		}

		writeJSON(w, data)
		return
	}

	attrs := api.GM.NodeAttrs(name)

	if len(attrs) == 0 {
		http.Error(w, "Unknown node kind "+name, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]interface{}{
		"node_attrs": attrs,
		"node_edges": api.GM.NodeEdges(name),
		"node_count": api.GM.NodeCount(name),
	})
}

/*
storeInfo collects the known kinds of the datastore with their counts.
*/
func storeInfo() map[string]interface{} {
	nks := api.GM.NodeKinds()
	ncs := make(map[string]uint64, len(nks))

	for _, nk := range nks {
		ncs[nk] = api.GM.NodeCount(nk)
	}

	eks := api.GM.EdgeKinds()
	ecs := make(map[string]uint64, len(eks))

	for _, ek := range eks {
		ecs[ek] = api.GM.EdgeCount(ek)
	}

	data := map[string]interface{}{
		"node_kinds":  nks,
		"node_counts": ncs,
		"edge_kinds":  eks,
		"edge_counts": ecs,
	}

	if api.RE != nil {
		data["rule_classes"] = api.RE.Registry().Classes()
		data["graph_rules"] = api.GM.GraphRules()
	}

	return data
}

/*
classInfo returns the member counts of all groups a node of a given class
can belong to. Groups of ancestor classes are included.
*/
func classInfo(class string) (map[string]interface{}, error) {
	reg := api.RE.Registry()

	if _, ok := reg.Class(class); !ok && len(reg.RulesFor(class)) == 0 {
		return nil, &rules.RuleError{Type: rules.ErrUnknownClass, Detail: class}
	}

	groups := make(map[string]int)

	for _, owner := range reg.ClassChain(class) {
		for _, rd := range reg.RulesFor(owner) {

			members, err := api.RE.GroupMembers(owner, rd.Name)
			if err != nil {
				return nil, err
			}

			groups[owner+"."+rd.Name] = len(members)
		}
	}

	ancestors := reg.Ancestors(class)
	if ancestors == nil {
		ancestors = []string{}
	}

	return map[string]interface{}{
		"class":     class,
		"ancestors": ancestors,
		"groups":    groups,
	}, nil
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (ie *infoEndpoint) SwaggerDefs(s map[string]interface{}) {
	paths := s["paths"].(map[string]interface{})

	paths["/v1/info"] = map[string]interface{}{
		"get": infoOperation("Return general datastore information.",
			"Returns known node and edge kinds with their counts, classes with rules and the installed graph rules.",
			nil),
	}

	paths["/v1/info/kind/{kind}"] = map[string]interface{}{
		"get": infoOperation("Return information on a given node kind.",
			"Returns known attributes, edges and the node count of a node kind.",
			[]map[string]interface{}{{
				"name":        "kind",
				"in":          "path",
				"description": "Node kind to be queried.",
				"required":    true,
				"type":        "string",
			}}),
	}

	paths["/v1/info/class/{class}"] = map[string]interface{}{
		"get": infoOperation("Return the group sizes of a class.",
			"Returns the member count of every rule group a node of the class can belong to, including groups of ancestor classes.",
			[]map[string]interface{}{classParam}),
	}
}

/*
infoOperation builds the swagger definition of an info query.
*/
func infoOperation(summary string, description string, params []map[string]interface{}) map[string]interface{} {
	op := map[string]interface{}{
		"summary":     summary,
		"description": description,
		"produces": []string{
			"text/plain",
			"application/json",
		},
		"responses": map[string]interface{}{
			"200": map[string]interface{}{
				"description": "A key-value map.",
			},
			"default": map[string]interface{}{
				"description": "Error response",
				"schema": map[string]interface{}{
					"$ref": "#/definitions/Error",
				},
			},
		},
	}

	if params != nil {
		op["parameters"] = params
	}

	return op
}
