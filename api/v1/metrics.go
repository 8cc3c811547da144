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
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/*
EndpointMetrics is the metrics endpoint URL (rooted). Handles metrics/
*/
const EndpointMetrics = api.APIRoot + APIv1 + "/metrics/"

/*
MetricsEndpointInst creates a new endpoint handler.
*/
func MetricsEndpointInst() api.RestEndpointHandler {
	return &metricsEndpoint{}
}

/*
Handler object for metrics.
*/
type metricsEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandleGET returns the metrics of the rule engine in the Prometheus text format.
*/
func (me *metricsEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {

	if !checkEngine(w) || !checkResources(w, resources, 0, 0, "") {
		return
	}

	promhttp.HandlerFor(api.RE.Metrics().Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (me *metricsEndpoint) SwaggerDefs(s map[string]interface{}) {

	s["paths"].(map[string]interface{})["/v1/metrics"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Return metrics of the rule engine.",
			"description": "Returns predicate evaluations, membership changes, cascades, bulk updates and failures in the Prometheus text format.",
			"produces": []string{
				"text/plain",
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "Metrics in the Prometheus text format.",
				},
			},
		},
	}
}
