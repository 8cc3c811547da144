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
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/krotik/rulegraph/api"
	"github.com/krotik/rulegraph/graph"
	"github.com/krotik/rulegraph/graph/data"
	"github.com/krotik/rulegraph/rules"
)

/*
EndpointGraph is the graph endpoint URL (rooted). Handles everything under graph/...
*/
const EndpointGraph = api.APIRoot + APIv1 + "/graph/"

/*
GraphEndpointInst creates a new endpoint handler.
*/
func GraphEndpointInst() api.RestEndpointHandler {
	return &graphEndpoint{}
}

/*
Handler object for graph operations.
*/
type graphEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandleGET handles REST calls to retrieve data from the graph database.
*/
func (ge *graphEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {

	// Check parameters

	if !checkResources(w, resources, 2, 4, "Need an entity type (n or e) and a kind; optional key and traversal spec") {
		return
	}

	if resources[0] != "n" && resources[0] != "e" {
		http.Error(w, "Entity type must be n (nodes) or e (edges)", http.StatusBadRequest)
		return
	}

	if len(resources) == 2 {

		// Iterate over a list of nodes

		if resources[0] != "n" {
			http.Error(w, "Entity type must be n (nodes) when requesting all items", http.StatusBadRequest)
			return
		}

		ge.handleNodeList(w, r, resources[1])

	} else if len(resources) == 3 {

		// Fetch a specific node or relationship

		var item data.Node
		var err error

		if resources[0] == "n" {
			item, err = api.GM.FetchNode(resources[2], resources[1])
		} else {
			var edge data.Edge
			if edge, err = api.GM.FetchEdge(resources[2], resources[1]); edge != nil {
				item = edge
			}
		}

		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		} else if item == nil {
			http.Error(w, "Unknown node or edge", http.StatusNotFound)
			return
		}

		writeJSON(w, item.Data())

	} else {

		if resources[0] != "n" {
			http.Error(w, "Entity type must be n (nodes) when requesting traversal results", http.StatusBadRequest)
			return
		}

		node, err := api.GM.FetchNode(resources[2], resources[1])

		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		} else if node == nil {
			http.Error(w, "Unknown node", http.StatusNotFound)
			return
		}

		nodes, edges, err := api.GM.TraverseMulti(resources[2], resources[1], resources[3], true)

		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		dataNodes := make([]map[string]interface{}, 0, len(nodes))
		dataEdges := make([]map[string]interface{}, 0, len(edges))

		for i, n := range nodes {
			dataNodes = append(dataNodes, n.Data())
			dataEdges = append(dataEdges, edges[i].Data())
		}

		writeJSON(w, [][]map[string]interface{}{dataNodes, dataEdges})
	}
}

/*
handleNodeList writes a list of nodes of a given kind.
*/
func (ge *graphEndpoint) handleNodeList(w http.ResponseWriter, r *http.Request, kind string) {

	// Get limit and offset parameter; -1 if not set

	limit, ok := queryParamPosNum(w, r, "limit")
	if !ok {
		return
	}

	offset, ok := queryParamPosNum(w, r, "offset")
	if !ok {
		return
	}

	it, err := api.GM.NodeKeyIterator(kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	} else if it == nil {
		http.Error(w, "Unknown node kind", http.StatusNotFound)
		return
	}

	if offset != -1 {
		for i := 0; i < offset; i++ {
			if !it.HasNext() {
				http.Error(w, "Offset exceeds available nodes", http.StatusBadRequest)
				return
			}
			it.Next()
		}
	}

	res := make([]interface{}, 0)

	for it.HasNext() && (limit == -1 || len(res) < limit) {
		node, err := api.GM.FetchNode(it.Next(), kind)

		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		} else if node != nil {
			res = append(res, node.Data())
		}
	}

	// Set total count header

	w.Header().Add(HTTPHeaderTotalCount, strconv.FormatUint(api.GM.NodeCount(kind), 10))

	writeJSON(w, res)
}

/*
HandlePUT handles a REST call to insert new elements into the graph or update
existing elements. Nodes are updated if they already exist. Edges are replaced
if they already exist.
*/
func (ge *graphEndpoint) HandlePUT(w http.ResponseWriter, r *http.Request, resources []string) {
	ge.handleGraphRequest(w, r, resources,
		func(trans graph.Trans, node data.Node) error {
			return trans.UpdateNode(node)
		},
		func(trans graph.Trans, edge data.Edge) error {
			return trans.StoreEdge(edge)
		})
}

/*
HandlePOST handles a REST call to insert new elements into the graph or update
existing elements. Nodes and edges are replaced if they already exist.
*/
func (ge *graphEndpoint) HandlePOST(w http.ResponseWriter, r *http.Request, resources []string) {
	ge.handleGraphRequest(w, r, resources,
		func(trans graph.Trans, node data.Node) error {
			return trans.StoreNode(node)
		},
		func(trans graph.Trans, edge data.Edge) error {
			return trans.StoreEdge(edge)
		})
}

/*
HandleDELETE handles a REST call to delete elements from the graph.
*/
func (ge *graphEndpoint) HandleDELETE(w http.ResponseWriter, r *http.Request, resources []string) {
	ge.handleGraphRequest(w, r, resources,
		func(trans graph.Trans, node data.Node) error {
			return trans.RemoveNode(node.Key(), node.Kind())
		},
		func(trans graph.Trans, edge data.Edge) error {
			return trans.RemoveEdge(edge.Key(), edge.Kind())
		})
}

/*
handleGraphRequest handles a graph modification REST call. All changes are
done in a single transaction which is rolled back if a rule fails.
*/
func (ge *graphEndpoint) handleGraphRequest(w http.ResponseWriter, r *http.Request, resources []string,
	transFuncNode func(trans graph.Trans, node data.Node) error,
	transFuncEdge func(trans graph.Trans, edge data.Edge) error) {

	var nDataList []map[string]interface{}
	var eDataList []map[string]interface{}

	// Check parameters

	if !checkResources(w, resources, 0, 1, "") {
		return
	}

	dec := json.NewDecoder(r.Body)

	if len(resources) == 0 {

		// No explicit type given - expecting a graph

		gdata := make(map[string][]map[string]interface{})

		if err := dec.Decode(&gdata); err != nil {
			http.Error(w, "Could not decode request body as object with list of nodes and/or edges: "+err.Error(), http.StatusBadRequest)
			return
		}

		nDataList = gdata["nodes"]
		eDataList = gdata["edges"]

	} else if resources[0] == "n" {

		if err := dec.Decode(&nDataList); err != nil {
			http.Error(w, "Could not decode request body as list of nodes: "+err.Error(), http.StatusBadRequest)
			return
		}

	} else if resources[0] == "e" {

		if err := dec.Decode(&eDataList); err != nil {
			http.Error(w, "Could not decode request body as list of edges: "+err.Error(), http.StatusBadRequest)
			return
		}

	} else {

		http.Error(w, "Entity type must be n (nodes) or e (edges)", http.StatusBadRequest)
		return
	}

	// Create a transaction

	trans := graph.NewGraphTrans(api.GM)

	for _, ndata := range nDataList {
		if err := transFuncNode(trans, data.NewGraphNodeFromMap(ndata)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	for _, edata := range eDataList {
		edge := data.NewGraphEdgeFromNode(data.NewGraphNodeFromMap(edata))

		if err := transFuncEdge(trans, edge); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	// Commit transaction - rule errors reject the whole request

	if err := trans.Commit(); err != nil {
		status := http.StatusInternalServerError

		if rules.IsRuleError(err, rules.ErrEvaluation) || rules.IsRuleError(err, rules.ErrInvalidValue) ||
			rules.IsRuleError(err, rules.ErrCascadeDepth) {
			status = http.StatusConflict
		}

		http.Error(w, err.Error(), status)
	}
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (ge *graphEndpoint) SwaggerDefs(s map[string]interface{}) {

	kindParam := map[string]interface{}{
		"name":        "kind",
		"in":          "path",
		"description": "Node or edge kind to be queried.",
		"required":    true,
		"type":        "string",
	}

	keyParam := map[string]interface{}{
		"name":        "key",
		"in":          "path",
		"description": "Node or edge key to be queried.",
		"required":    true,
		"type":        "string",
	}

	entityParam := map[string]interface{}{
		"name": "entity_type",
		"in":   "path",
		"description": "Datastore entity type which should selected. " +
			"Either n for nodes or e for edges.",
		"required": true,
		"type":     "string",
	}

	defaultError := map[string]interface{}{
		"description": "Error response",
		"schema": map[string]interface{}{
			"$ref": "#/definitions/Error",
		},
	}

	graphBody := map[string]interface{}{
		"name":        "entities",
		"in":          "body",
		"description": "Nodes and edges which should be stored or removed",
		"required":    true,
		"schema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"nodes": map[string]interface{}{
					"description": "List of nodes.",
					"type":        "array",
					"items": map[string]interface{}{
						"type": "object",
					},
				},
				"edges": map[string]interface{}{
					"description": "List of edges.",
					"type":        "array",
					"items": map[string]interface{}{
						"type": "object",
					},
				},
			},
		},
	}

	modifyOp := func(summary string) map[string]interface{} {
		return map[string]interface{}{
			"summary":     summary,
			"description": "All changes are done in one transaction. The transaction is rolled back if a rule cannot be evaluated.",
			"consumes": []string{
				"application/json",
			},
			"produces": []string{
				"text/plain",
			},
			"parameters": []map[string]interface{}{
				graphBody,
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "No data is returned when data is stored or removed.",
				},
				"default": defaultError,
			},
		}
	}

	s["paths"].(map[string]interface{})["/v1/graph"] = map[string]interface{}{
		"post":   modifyOp("Store nodes and edges."),
		"put":    modifyOp("Update nodes and store edges."),
		"delete": modifyOp("Remove nodes and edges."),
	}

	s["paths"].(map[string]interface{})["/v1/graph/n/{kind}"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Return a list of nodes of a given kind.",
			"description": "The total number of nodes is returned in the " + HTTPHeaderTotalCount + " header.",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"parameters": []map[string]interface{}{
				kindParam,
				{
					"name":        "limit",
					"in":          "query",
					"description": "How many list items to return.",
					"required":    false,
					"type":        "number",
					"format":      "integer",
				},
				{
					"name":        "offset",
					"in":          "query",
					"description": "Offset in the dataset.",
					"required":    false,
					"type":        "number",
					"format":      "integer",
				},
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "A list of nodes.",
				},
				"default": defaultError,
			},
		},
	}

	s["paths"].(map[string]interface{})["/v1/graph/{entity_type}/{kind}/{key}"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Return a single node or edge.",
			"description": "Returns all attributes of a node or an edge.",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"parameters": []map[string]interface{}{
				entityParam,
				kindParam,
				keyParam,
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "A single node or edge.",
				},
				"default": defaultError,
			},
		},
	}

	s["paths"].(map[string]interface{})["/v1/graph/n/{kind}/{key}/{traversal_spec}"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Traverse from a single node.",
			"description": "Returns a list of nodes and a list of the traversed edges.",
			"produces": []string{
				"text/plain",
				"application/json",
			},
			"parameters": []map[string]interface{}{
				kindParam,
				keyParam,
				{
					"name":        "traversal_spec",
					"in":          "path",
					"description": "Traversal to be followed from a single node.",
					"required":    true,
					"type":        "string",
				},
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "A list of nodes and a list of edges.",
				},
				"default": defaultError,
			},
		},
	}
}
