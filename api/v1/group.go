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
)

/*
EndpointGroup is the group endpoint URL (rooted). Handles everything under group/...
*/
const EndpointGroup = api.APIRoot + APIv1 + "/group/"

/*
GroupEndpointInst creates a new endpoint handler.
*/
func GroupEndpointInst() api.RestEndpointHandler {
	return &groupEndpoint{}
}

/*
Handler object for group member queries.
*/
type groupEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandleGET returns the members of a rule group.
*/
func (ge *groupEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {

	if !checkEngine(w) || !checkResources(w, resources, 2, 2, "Need a class and a rule name") {
		return
	}

	// Get limit and offset parameter; -1 if not set

	limit, ok := queryParamPosNum(w, r, "limit")
	if !ok {
		return
	}

	offset, ok := queryParamPosNum(w, r, "offset")
	if !ok {
		return
	}

	members, err := api.RE.GroupMembers(resources[0], resources[1])
	if err != nil {
		http.Error(w, err.Error(), ruleErrorStatus(err))
		return
	}

	if offset == -1 {
		offset = 0
	} else if offset > len(members) {
		http.Error(w, "Offset exceeds available members", http.StatusBadRequest)
		return
	}

	end := len(members)
	if limit != -1 && offset+limit < end {
		end = offset + limit
	}

	data := make([]interface{}, 0, end-offset)

	for _, member := range members[offset:end] {
		data = append(data, member.Data())
	}

	// Set total count header

	w.Header().Add(HTTPHeaderTotalCount, strconv.Itoa(len(members)))

	writeJSON(w, data)
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (ge *groupEndpoint) SwaggerDefs(s map[string]interface{}) {

	s["paths"].(map[string]interface{})["/v1/group/{class}/{rule}"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Return the members of a rule group.",
			"description": "Returns all nodes which satisfy the predicate of a rule sorted by key. The total number of members is returned in the " + HTTPHeaderTotalCount + " header.",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"parameters": []map[string]interface{}{
				classParam,
				ruleParam,
				{
					"name":        "limit",
					"in":          "query",
					"description": "How many members to return.",
					"required":    false,
					"type":        "number",
					"format":      "integer",
				},
				{
					"name":        "offset",
					"in":          "query",
					"description": "Offset in the sorted member list.",
					"required":    false,
					"type":        "number",
					"format":      "integer",
				},
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "The list of member nodes.",
					"schema": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"description": "Node data.",
							"type":        "object",
						},
					},
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
