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
	"strconv"

	"github.com/krotik/rulegraph/api"
	"github.com/krotik/rulegraph/rules"
)

/*
EndpointRules is the rules endpoint URL (rooted). Handles everything under rules/...
*/
const EndpointRules = api.APIRoot + APIv1 + "/rules/"

/*
RulesEndpointInst creates a new endpoint handler.
*/
func RulesEndpointInst() api.RestEndpointHandler {
	return &rulesEndpoint{}
}

/*
Handler object for rule listings.
*/
type rulesEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandleGET lists registered classes and their rules.
*/
func (re *rulesEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {

	if !checkEngine(w) || !checkResources(w, resources, 0, 1, "") {
		return
	}

	registry := api.RE.Registry()

	if len(resources) == 1 {
		cd, ok := registry.Class(resources[0])

		if !ok {
			http.Error(w, "Unknown class "+resources[0], http.StatusNotFound)
			return
		}

		writeJSON(w, classData(registry, cd))
		return
	}

	data := make([]interface{}, 0)

	for _, class := range registry.Classes() {
		if cd, ok := registry.Class(class); ok {
			data = append(data, classData(registry, cd))
		}
	}

	w.Header().Add(HTTPHeaderTotalCount, strconv.Itoa(len(data)))

	writeJSON(w, data)
}

/*
classData returns the JSON representation of a class and its rules.
*/
func classData(registry *rules.RuleRegistry, cd *rules.ClassDescriptor) map[string]interface{} {
	rds := make([]interface{}, 0)

	for _, rd := range registry.RulesFor(cd.Name) {
		fns := make([]interface{}, 0, len(rd.Functions))

		for _, fn := range rd.Functions {
			fns = append(fns, map[string]interface{}{
				"name":      fn.Name(),
				"property":  fn.Property(),
				"attribute": rules.PropertyName(fn, rd.Name),
			})
		}

		triggers := rd.Triggers
		if triggers == nil {
			triggers = []string{}
		}

		rds = append(rds, map[string]interface{}{
			"name":          rd.Name,
			"predicate":     rd.Predicate.Type().String(),
			"condition":     rd.Predicate.Code(),
			"functions":     fns,
			"triggers":      triggers,
			"bulk_eligible": rd.BulkEligible(),
		})
	}

	ancestors := cd.Ancestors
	if ancestors == nil {
		ancestors = []string{}
	}

	properties := cd.Properties
	if properties == nil {
		properties = []string{}
	}

	return map[string]interface{}{
		"name":       cd.Name,
		"parent":     cd.Parent,
		"ancestors":  ancestors,
		"properties": properties,
		"rules":      rds,
	}
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (re *rulesEndpoint) SwaggerDefs(s map[string]interface{}) {

	s["paths"].(map[string]interface{})["/v1/rules"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Return all registered classes and their rules.",
			"description": "The rules endpoint returns the class hierarchy together with the rules of each class.",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "A list of class objects.",
				},
				"default": map[string]interface{}{
					"description": "Error response",
					"schema": map[string]interface{}{
						"$ref": "#/definitions/Error",
					},
				},
			},
		},
	}

	s["paths"].(map[string]interface{})["/v1/rules/{class}"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Return a single class and its rules.",
			"description": "Returns parent, ancestors, declared properties and rules of a class.",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"parameters": []map[string]interface{}{
				classParam,
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "A class object.",
				},
				"default": map[string]interface{}{
					"description": "Error response",
					"schema": map[string]interface{}{
						"$ref": "#/definitions/Error",
					},
				},
			},
		},
	}
}

/*
Common swagger parameters of rule endpoints
*/
var (
	classParam = map[string]interface{}{
		"name":        "class",
		"in":          "path",
		"description": "Name of the class.",
		"required":    true,
		"type":        "string",
	}
	ruleParam = map[string]interface{}{
		"name":        "rule",
		"in":          "path",
		"description": "Name of the rule.",
		"required":    true,
		"type":        "string",
	}
)
