/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package v1 contains RuleGraph REST API Version 1.

Rule endpoints

/rules

Lists all registered classes together with their rules. A single class can
be requested with /rules/<class>.

/group

Returns the members of a rule group: /group/<class>/<rule>. Supports the
offset and limit query parameters.

/aggregate

Returns aggregate values of a rule group: /aggregate/<class>/<rule> returns
all values, /aggregate/<class>/<rule>/<function>[/<property>] a single value.

/reevaluate, /reconcile, /teardown

Maintenance operations: POST /reevaluate/<kind>/<key> evaluates all rules of
a node, POST /reconcile/<class> rebuilds all groups of a class and
DELETE /teardown/<class> removes all rules and groups of a class.

/aggregates

Websocket feed of aggregate changes.

/metrics

Prometheus metrics of the rule engine.

Graph endpoints

/graph

Read and modify nodes and edges of the graph. All modifications are
evaluated by the rule engine.

/info

General graph information such as known node kinds and counts. Details of
a node kind can be requested with /info/kind/<kind>, the group sizes of all
rules which apply to a class with /info/class/<class>.
*/
package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/krotik/rulegraph/api"
	"github.com/krotik/rulegraph/rules"
)

/*
APIv1 is the directory for version 1 of the API
*/
const APIv1 = "/v1"

/*
HTTPHeaderTotalCount is a special header value containing the total count of objects.
*/
const HTTPHeaderTotalCount = "X-Total-Count"

/*
V1EndpointMap is a map of urls to endpoints for version 1 of the API
*/
var V1EndpointMap = map[string]api.RestEndpointInst{
	EndpointAggregate:       AggregateEndpointInst,
	EndpointAggregateSocket: AggregateSocketEndpointInst,
	EndpointGraph:           GraphEndpointInst,
	EndpointGroup:           GroupEndpointInst,
	EndpointInfoQuery:       InfoEndpointInst,
	EndpointMetrics:         MetricsEndpointInst,
	EndpointReconcile:       ReconcileEndpointInst,
	EndpointReevaluate:      ReevaluateEndpointInst,
	EndpointRules:           RulesEndpointInst,
	EndpointTeardown:        TeardownEndpointInst,
}

// Helper functions
// ================

/*
checkResources check given resources for a GET request.
*/
func checkResources(w http.ResponseWriter, resources []string, requiredMin int, requiredMax int, errorMsg string) bool {
	if len(resources) < requiredMin {
		http.Error(w, errorMsg, http.StatusBadRequest)
		return false
	} else if len(resources) > requiredMax {
		http.Error(w, "Invalid resource specification: "+strings.Join(resources[1:], "/"), http.StatusBadRequest)
		return false
	}
	return true
}

/*
Extract a positive number from a query parameter. Returns -1 and true
if the parameter was not given.
*/
func queryParamPosNum(w http.ResponseWriter, r *http.Request, param string) (int, bool) {

	val := r.URL.Query().Get(param)

	if val == "" {
		return -1, true
	}

	num, err := strconv.Atoi(val)

	if err != nil || num < 0 {
		http.Error(w, "Invalid parameter value: "+param+" should be a positive integer number", http.StatusBadRequest)
		return -1, false
	}

	return num, true
}

/*
checkEngine checks that a rule engine is available.
*/
func checkEngine(w http.ResponseWriter) bool {
	if api.RE == nil {
		http.Error(w, "Rule engine is not available", http.StatusServiceUnavailable)
		return false
	}
	return true
}

/*
ruleErrorStatus returns the HTTP status code for an error of the rule engine.
*/
func ruleErrorStatus(err error) int {
	if rules.IsRuleError(err, rules.ErrUnknownRule) ||
		rules.IsRuleError(err, rules.ErrUnknownFunction) ||
		rules.IsRuleError(err, rules.ErrUnknownNode) ||
		rules.IsRuleError(err, rules.ErrUnknownClass) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

/*
writeJSON writes a JSON response.
*/
func writeJSON(w http.ResponseWriter, data interface{}) {
	api.WriteJSON(w, data)
}
