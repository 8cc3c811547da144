/*
 * RuleGraph
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
)

/*
EndpointSwagger is the swagger endpoint URL (rooted). Handles swagger.json/
*/
const EndpointSwagger = APIRoot + "/swagger.json/"

/*
SwaggerEndpointInst creates a new endpoint handler.
*/
func SwaggerEndpointInst() RestEndpointHandler {
	return &swaggerEndpoint{}
}

/*
Handler object for swagger operations.
*/
type swaggerEndpoint struct {
	*DefaultEndpointHandler
}

/*
HandleGET returns the swagger definition of the REST API.
*/
func (a *swaggerEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {
	WriteJSON(w, SwaggerDefinition())
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (a *swaggerEndpoint) SwaggerDefs(s map[string]interface{}) {
	s["info"] = map[string]interface{}{
		"title":       "RuleGraph API",
		"description": "Inspect rule groups and aggregate values and modify the RuleGraph datastore.",
		"version":     APIVersion,
	}
}

/*
SwaggerDefinition collects the swagger definitions of all registered
endpoints. Operations are tagged with the first path segment after the API
version (e.g. /v1/group/{class}/{rule} is tagged with group).
*/
func SwaggerDefinition() map[string]interface{} {
	paths := map[string]interface{}{}

	data := map[string]interface{}{
		"swagger":     "2.0",
		"host":        APIHost,
		"schemes":     APISchemes,
		"basePath":    APIRoot,
		"produces":    []string{"application/json"},
		"paths":       paths,
		"definitions": map[string]interface{}{},
	}

	(&swaggerEndpoint{}).SwaggerDefs(data)

	// Registered endpoints add their definitions in a stable order

	urls := make([]string, 0, len(registered))
	for url := range registered {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	for _, url := range urls {
		registered[url]().SwaggerDefs(data)
	}

	tags := make(map[string]bool)

	for path, ops := range paths {
		tag := pathTag(path)
		tags[tag] = true

		for _, op := range ops.(map[string]interface{}) {
			if opm, ok := op.(map[string]interface{}); ok {
				if _, ok := opm["tags"]; !ok {
					opm["tags"] = []string{tag}
				}
			}
		}
	}

	tagList := make([]map[string]interface{}, 0, len(tags))
	for _, tag := range sortedKeys(tags) {
		tagList = append(tagList, map[string]interface{}{"name": tag})
	}

	data["tags"] = tagList

	return data
}

/*
pathTag returns the tag of a swagger path.
*/
func pathTag(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")

	if len(segs) > 1 && strings.HasPrefix(segs[0], "v") {
		if _, err := strconv.Atoi(segs[0][1:]); err == nil {
			return segs[1]
		}
	}

	return segs[0]
}

/*
sortedKeys returns the keys of a set in ascending order.
*/
func sortedKeys(m map[string]bool) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
