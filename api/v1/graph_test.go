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
	"strings"
	"testing"

	"github.com/krotik/rulegraph/api"
	"github.com/krotik/rulegraph/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphEndpoint(t *testing.T) {
	setupEngine(t)

	storeReaders(t, "POST", `{"key":"r1","kind":"Reader","age":3}`,
		`{"key":"r2","kind":"Reader","age":4}`, `{"key":"r3","kind":"Reader","age":30}`)

	// List nodes

	body, resp := sendTestRequestResponse(queryURL+"/graph/n/Reader?offset=1&limit=1", "GET", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get(HTTPHeaderTotalCount))
	assert.Equal(t, `
[
  {
    "age": 4,
    "key": "r2",
    "kind": "Reader"
  }
]`[1:], body)

	body, resp = sendTestRequestResponse(queryURL+"/graph/n/Library", "GET", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Unknown node kind", body)

	body, _ = sendTestRequestResponse(queryURL+"/graph/n/Reader?offset=5", "GET", nil)
	assert.Equal(t, "Offset exceeds available nodes", body)

	body, _ = sendTestRequestResponse(queryURL+"/graph/n/Reader?limit=x", "GET", nil)
	assert.Equal(t, "Invalid parameter value: limit should be a positive integer number", body)

	body, _ = sendTestRequestResponse(queryURL+"/graph/e/young", "GET", nil)
	assert.Equal(t, "Entity type must be n (nodes) when requesting all items", body)

	body, _ = sendTestRequestResponse(queryURL+"/graph/x/Reader", "GET", nil)
	assert.Equal(t, "Entity type must be n (nodes) or e (edges)", body)

	// Single node

	assert.Equal(t, `
{
  "age": 3,
  "key": "r1",
  "kind": "Reader"
}`[1:], sendTestRequest(queryURL+"/graph/n/Reader/r1", "GET", nil))

	_, resp = sendTestRequestResponse(queryURL+"/graph/n/Reader/r9", "GET", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Traverse from a member to its groups

	body = sendTestRequest(queryURL+"/graph/n/Reader/r1/member::group:RuleGroup", "GET", nil)
	assert.Contains(t, body, `"group_rule": "all"`)
	assert.Contains(t, body, `"group_rule": "young"`)

	_, resp = sendTestRequestResponse(queryURL+"/graph/n/Reader/r1/foo", "GET", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Update and delete nodes - the groups follow

	storeReaders(t, "PUT", `{"key":"r3","kind":"Reader","age":2}`)

	assert.Equal(t, `
{
  "count_young": 3,
  "sum_young_age": 9
}`[1:], sendTestRequest(queryURL+"/aggregate/Reader/young", "GET", nil))

	// Updated nodes keep attributes which were not given

	assert.Contains(t, sendTestRequest(queryURL+"/graph/n/Reader/r3", "GET", nil), `"age": 2`)

	storeReaders(t, "DELETE", `{"key":"r1","kind":"Reader"}`)

	assert.Equal(t, `
{
  "count_young": 2,
  "sum_young_age": 6
}`[1:], sendTestRequest(queryURL+"/aggregate/Reader/young", "GET", nil))

	assert.Equal(t, `
{
  "value": 2
}`[1:], sendTestRequest(queryURL+"/aggregate/Reader/all/count", "GET", nil))

	// Edges

	body, resp = sendTestRequestResponse(queryURL+"/graph/", "POST", []byte(`
{
  "nodes" : [ { "key" : "l1", "kind" : "Library" } ],
  "edges" : [ {
    "key" : "m1", "kind" : "memberOf",
    "end1key" : "r2", "end1kind" : "Reader", "end1role" : "reader", "end1cascading" : false,
    "end2key" : "l1", "end2kind" : "Library", "end2role" : "library", "end2cascading" : false
  } ]
}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	assert.Contains(t, sendTestRequest(queryURL+"/graph/e/memberOf/m1", "GET", nil), `"end2key": "l1"`)

	body, resp = sendTestRequestResponse(queryURL+"/graph/e", "DELETE", []byte(`[{"key":"m1","kind":"memberOf"}]`))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	_, resp = sendTestRequestResponse(queryURL+"/graph/e/memberOf/m1", "GET", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Invalid requests

	body, resp = sendTestRequestResponse(queryURL+"/graph/n", "POST", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body, "Could not decode request body as list of nodes"), body)

	body, _ = sendTestRequestResponse(queryURL+"/graph/e", "POST", []byte(`{`))
	assert.True(t, strings.HasPrefix(body, "Could not decode request body as list of edges"), body)

	body, _ = sendTestRequestResponse(queryURL+"/graph/", "POST", []byte(`[]`))
	assert.True(t, strings.HasPrefix(body, "Could not decode request body as object"), body)

	body, _ = sendTestRequestResponse(queryURL+"/graph/x", "POST", []byte(`[]`))
	assert.Equal(t, "Entity type must be n (nodes) or e (edges)", body)

	body, resp = sendTestRequestResponse(queryURL+"/graph/n", "POST", []byte(`[{"kind":"Reader"}]`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "GraphError: Invalid data (Node is missing a key value)", body)
}

func TestGraphEndpointRuleFailure(t *testing.T) {
	setupEngine(t)

	_, err := api.RE.DefineRule("Book", "all", nil,
		[]rules.AggregateFunction{rules.Count(), rules.Sum("price")}, nil)
	require.NoError(t, err)

	body, resp := sendTestRequestResponse(queryURL+"/graph/n", "POST",
		[]byte(`[{"key":"b1","kind":"Book","price":10}]`))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	// A non-numeric value cannot be added - the whole request is rejected

	body, resp = sendTestRequestResponse(queryURL+"/graph/n", "POST",
		[]byte(`[{"key":"b2","kind":"Book","price":5},{"key":"b3","kind":"Book","price":"free"}]`))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "Value of price is not numeric: free (string)")

	_, resp = sendTestRequestResponse(queryURL+"/graph/n/Book/b2", "GET", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, `
{
  "count_all": 1,
  "sum_all_price": 10
}`[1:], sendTestRequest(queryURL+"/aggregate/Book/all", "GET", nil))
}
