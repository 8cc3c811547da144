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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/krotik/common/stringutil"
	"github.com/krotik/rulegraph/api"
	"github.com/krotik/rulegraph/rules"
)

/*
EndpointAggregateSocket is the websocket endpoint URL (rooted) for aggregate
change notifications. Handles everything under aggregates/...
*/
const EndpointAggregateSocket = api.APIRoot + APIv1 + "/aggregates/"

/*
FeedBufferSize is the number of pending notifications per connection. Further
notifications for a slow connection are dropped.
*/
var FeedBufferSize = 100

/*
aggregateUpgrader can upgrade normal requests to websocket communications
*/
var aggregateUpgrader = websocket.Upgrader{
	Subprotocols:    []string{"rulegraph-aggregates"},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

/*
AggregateSocketEndpointInst creates a new endpoint handler.
*/
func AggregateSocketEndpointInst() api.RestEndpointHandler {
	return &aggregateSocketEndpoint{}
}

/*
Handler object for aggregate change feeds.
*/
type aggregateSocketEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandleGET upgrades the connection to a websocket and sends aggregate changes
of committed transactions. The feed can be narrowed down to a class or a
single rule: aggregates/<class>/<rule>.
*/
func (ae *aggregateSocketEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {

	if !checkEngine(w) || !checkResources(w, resources, 0, 2, "") {
		return
	}

	// Update the incomming connection to a websocket
	// If the upgrade fails then the client gets an HTTP error response.

	conn, err := aggregateUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	fc := newFeedConnection(uuid.NewString(), conn)

	if len(resources) > 0 {
		fc.class = resources[0]
	}
	if len(resources) > 1 {
		fc.rule = resources[1]
	}

	feed := aggregateFeedFor(api.RE)

	feed.add(fc)
	defer feed.remove(fc)

	go fc.writeChanges()

	fc.writeMessage("init_success", map[string]interface{}{})

	for {
		var data map[string]interface{}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}

		if err = json.Unmarshal(msg, &data); err != nil {
			fc.writeMessage("error", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if val, ok := data["close"]; ok && stringutil.IsTrueValue(fmt.Sprint(val)) {
			fc.close("")
			break
		}
	}
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (ae *aggregateSocketEndpoint) SwaggerDefs(s map[string]interface{}) {
	// No swagger definitions for this endpoint as it only handles websocket requests
}

// Aggregate feed
// ==============

/*
feeds holds the aggregate feed of each rule engine.
*/
var (
	feeds     = make(map[*rules.Engine]*aggregateFeed)
	feedsLock = &sync.Mutex{}
)

/*
aggregateFeed distributes aggregate changes of a rule engine to websocket
connections.
*/
type aggregateFeed struct {
	conns map[*feedConnection]bool // Registered connections
	lock  *sync.Mutex              // Lock for connection map
}

/*
aggregateFeedFor returns the aggregate feed of a rule engine. The feed is
registered as listener with the engine when it is first requested.
*/
func aggregateFeedFor(e *rules.Engine) *aggregateFeed {
	feedsLock.Lock()
	defer feedsLock.Unlock()

	f, ok := feeds[e]

	if !ok {
		f = &aggregateFeed{make(map[*feedConnection]bool), &sync.Mutex{}}
		e.AddListener(f.publish)
		feeds[e] = f
	}

	return f
}

/*
add registers a connection with this feed.
*/
func (f *aggregateFeed) add(fc *feedConnection) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.conns[fc] = true
}

/*
remove removes a connection from this feed and stops its writer.
*/
func (f *aggregateFeed) remove(fc *feedConnection) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.conns[fc] {
		delete(f.conns, fc)
		close(fc.out)
	}
}

/*
publish hands an aggregate change to all interested connections. This is
called while the graph manager finishes a transaction and must not block.
*/
func (f *aggregateFeed) publish(change *rules.AggregateChange) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for fc := range f.conns {
		if fc.matches(change) {
			select {
			case fc.out <- change:
			default:
			}
		}
	}
}

/*
feedConnection models a single websocket connection of an aggregate feed.

Websocket connections support one concurrent reader and one concurrent writer.
See: https://godoc.org/github.com/gorilla/websocket#hdr-Concurrency
*/
type feedConnection struct {
	commID string                      // Communication ID
	conn   *websocket.Conn             // Websocket connection
	class  string                      // Class filter
	rule   string                      // Rule filter
	out    chan *rules.AggregateChange // Pending changes
	wmutex *sync.Mutex                 // Writer lock
}

/*
newFeedConnection creates a new feedConnection object.
*/
func newFeedConnection(commID string, c *websocket.Conn) *feedConnection {
	return &feedConnection{commID, c, "", "",
		make(chan *rules.AggregateChange, FeedBufferSize), &sync.Mutex{}}
}

/*
matches checks if a given change passes the filter of this connection.
*/
func (fc *feedConnection) matches(change *rules.AggregateChange) bool {
	return (fc.class == "" || fc.class == change.Class) &&
		(fc.rule == "" || fc.rule == change.Rule)
}

/*
writeChanges writes pending changes until the connection is removed from
its feed.
*/
func (fc *feedConnection) writeChanges() {
	for change := range fc.out {
		values := change.Values
		if values == nil {
			values = map[string]interface{}{}
		}

		fc.writeMessage("data", map[string]interface{}{
			"class":     change.Class,
			"rule":      change.Rule,
			"values":    values,
			"torn_down": change.TornDown,
		})
	}
}

/*
writeMessage writes a message to the websocket.
*/
func (fc *feedConnection) writeMessage(msgType string, payload map[string]interface{}) {
	fc.wmutex.Lock()
	defer fc.wmutex.Unlock()

	jsonData, _ := api.EncodeJSON(map[string]interface{}{
		"commID":  fc.commID,
		"type":    msgType,
		"payload": payload,
	})

	fc.conn.WriteMessage(websocket.TextMessage, jsonData)
}

/*
close closes the websocket connection.
*/
func (fc *feedConnection) close(msg string) {
	fc.wmutex.Lock()
	defer fc.wmutex.Unlock()

	fc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(
			websocket.CloseNormalClosure, msg), time.Now().Add(10*time.Second))

	fc.conn.Close()
}
