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
)

/*
EndpointReevaluate is the reevaluate endpoint URL (rooted). Handles everything under reevaluate/...
*/
const EndpointReevaluate = api.APIRoot + APIv1 + "/reevaluate/"

/*
EndpointReconcile is the reconcile endpoint URL (rooted). Handles everything under reconcile/...
*/
const EndpointReconcile = api.APIRoot + APIv1 + "/reconcile/"

/*
EndpointTeardown is the teardown endpoint URL (rooted). Handles everything under teardown/...
*/
const EndpointTeardown = api.APIRoot + APIv1 + "/teardown/"

/*
ReevaluateEndpointInst creates a new endpoint handler.
*/
func ReevaluateEndpointInst() api.RestEndpointHandler {
	return &reevaluateEndpoint{}
}

/*
Handler object for forced reevaluations.
*/
type reevaluateEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandlePOST evaluates all rules which apply to a node.
*/
func (re *reevaluateEndpoint) HandlePOST(w http.ResponseWriter, r *http.Request, resources []string) {

	if !checkEngine(w) || !checkResources(w, resources, 2, 2, "Need a node kind and a node key") {
		return
	}

	if err := api.RE.ForceReevaluate(resources[1], resources[0]); err != nil {
		http.Error(w, err.Error(), ruleErrorStatus(err))
	}
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (re *reevaluateEndpoint) SwaggerDefs(s map[string]interface{}) {

	s["paths"].(map[string]interface{})["/v1/reevaluate/{kind}/{key}"] = map[string]interface{}{
		"post": map[string]interface{}{
			"summary":     "Evaluate all rules of a node.",
			"description": "Evaluates the rules of the class of a node and of all its ancestor classes.",
			"produces": []string{
				"text/plain",
			},
			"parameters": []map[string]interface{}{
				{
					"name":        "kind",
					"in":          "path",
					"description": "Node kind.",
					"required":    true,
					"type":        "string",
				},
				{
					"name":        "key",
					"in":          "path",
					"description": "Node key.",
					"required":    true,
					"type":        "string",
				},
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "No data is returned when the node was evaluated.",
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
ReconcileEndpointInst creates a new endpoint handler.
*/
func ReconcileEndpointInst() api.RestEndpointHandler {
	return &reconcileEndpoint{}
}

/*
Handler object for reconciliation requests.
*/
type reconcileEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandlePOST rebuilds all groups of a class.
*/
func (re *reconcileEndpoint) HandlePOST(w http.ResponseWriter, r *http.Request, resources []string) {

	if !checkEngine(w) || !checkResources(w, resources, 1, 1, "Need a class") {
		return
	}

	count, err := api.RE.Reconcile(resources[0])
	if err != nil {
		http.Error(w, err.Error(), ruleErrorStatus(err))
		return
	}

	writeJSON(w, map[string]interface{}{
		"evaluated": count,
	})
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (re *reconcileEndpoint) SwaggerDefs(s map[string]interface{}) {

	s["paths"].(map[string]interface{})["/v1/reconcile/{class}"] = map[string]interface{}{
		"post": map[string]interface{}{
			"summary":     "Rebuild all groups of a class.",
			"description": "Tears down all groups of a class and evaluates every node of the class and its subclasses again.",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"parameters": []map[string]interface{}{
				classParam,
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "Object with the number of evaluated nodes.",
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
TeardownEndpointInst creates a new endpoint handler.
*/
func TeardownEndpointInst() api.RestEndpointHandler {
	return &teardownEndpoint{}
}

/*
Handler object for teardown requests.
*/
type teardownEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandleDELETE removes all rules of a class together with their groups.
*/
func (te *teardownEndpoint) HandleDELETE(w http.ResponseWriter, r *http.Request, resources []string) {

	if !checkEngine(w) || !checkResources(w, resources, 1, 1, "Need a class") {
		return
	}

	removed, err := api.RE.TeardownRules(resources[0])
	if err != nil {
		http.Error(w, err.Error(), ruleErrorStatus(err))
		return
	}

	writeJSON(w, map[string]interface{}{
		"removed": removed,
	})
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (te *teardownEndpoint) SwaggerDefs(s map[string]interface{}) {

	s["paths"].(map[string]interface{})["/v1/teardown/{class}"] = map[string]interface{}{
		"delete": map[string]interface{}{
			"summary":     "Remove all rules of a class.",
			"description": "Removes all rules of a class together with their group anchors and membership edges.",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"parameters": []map[string]interface{}{
				classParam,
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "Object with the number of removed membership edges.",
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
