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
EndpointAggregate is the aggregate endpoint URL (rooted). Handles everything under aggregate/...
*/
const EndpointAggregate = api.APIRoot + APIv1 + "/aggregate/"

/*
AggregateEndpointInst creates a new endpoint handler.
*/
func AggregateEndpointInst() api.RestEndpointHandler {
	return &aggregateEndpoint{}
}

/*
Handler object for aggregate value queries.
*/
type aggregateEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandleGET returns aggregate values of a rule group.
*/
func (ae *aggregateEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {

	if !checkEngine(w) || !checkResources(w, resources, 2, 4,
		"Need a class and a rule name; optional function name and property") {
		return
	}

	class, rule := resources[0], resources[1]

	if len(resources) > 2 {
		var property string

		if len(resources) == 4 {
			property = resources[3]
		}

		val, err := api.RE.AggregateValue(class, rule, resources[2], property)
		if err != nil {
			http.Error(w, err.Error(), ruleErrorStatus(err))
			return
		}

		writeJSON(w, map[string]interface{}{
			"value": val,
		})

		return
	}

	rd, ok := api.RE.Registry().Rule(class, rule)
	if !ok {
		http.Error(w, "Unknown rule "+class+"."+rule, http.StatusNotFound)
		return
	}

	data := make(map[string]interface{})

	for _, fn := range rd.Functions {
		val, err := api.RE.AggregateValue(class, rule, fn.Name(), fn.Property())
		if err != nil {
			http.Error(w, err.Error(), ruleErrorStatus(err))
			return
		}

		data[rules.PropertyName(fn, rule)] = val
	}

	writeJSON(w, data)
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (ae *aggregateEndpoint) SwaggerDefs(s map[string]interface{}) {

	errorResponse := map[string]interface{}{
		"description": "Error response",
		"schema": map[string]interface{}{
			"$ref": "#/definitions/Error",
		},
	}

	s["paths"].(map[string]interface{})["/v1/aggregate/{class}/{rule}"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Return all aggregate values of a rule group.",
			"description": "Returns a map of anchor attribute names to aggregate values. Groups which were never used return initial values.",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"parameters": []map[string]interface{}{
				classParam,
				ruleParam,
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "Aggregate values.",
				},
				"default": errorResponse,
			},
		},
	}

	s["paths"].(map[string]interface{})["/v1/aggregate/{class}/{rule}/{function}/{property}"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Return a single aggregate value of a rule group.",
			"description": "The property can be omitted for functions which are not bound to a property (e.g. count).",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"parameters": []map[string]interface{}{
				classParam,
				ruleParam,
				{
					"name":        "function",
					"in":          "path",
					"description": "Name of the aggregate function.",
					"required":    true,
					"type":        "string",
				},
				{
					"name":        "property",
					"in":          "path",
					"description": "Property the function is bound to.",
					"required":    true,
					"type":        "string",
				},
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "Object with the aggregate value.",
				},
				"default": errorResponse,
			},
		},
	}
}
