// Copyright (C) 2016 The sdx-parallel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"
	"strconv"

	stats_api "github.com/fukata/golang-stats-api-handler"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	_ = iota
	REQ_PEERS
	REQ_PEER
	REQ_RIB
	REQ_LOOKUP
	REQ_FORWARDING
)

const (
	BASE_VERSION = "/v1"
	PEERS        = "/peers"
	PEER         = "/peer"
	STATS        = "/stats"

	PARAM_AS    = "as"
	PARAM_TABLE = "table"
	PARAM_ADDR  = "addr"
)

const REST_PORT = 8080

// RestRequest is the unit of exchange between a REST handler and the
// route engine, which run on different goroutines. The handler blocks
// on ResponseCh for the single reply.
type RestRequest struct {
	RequestType int
	AS          uint32
	Table       string
	Key         string
	ResponseCh  chan *RestResponse
}

func NewRestRequest(reqType int, as uint32, tableName, key string) *RestRequest {
	return &RestRequest{
		RequestType: reqType,
		AS:          as,
		Table:       tableName,
		Key:         key,
		ResponseCh:  make(chan *RestResponse),
	}
}

type RestResponse struct {
	ResponseErr error
	Data        []byte
}

func (r *RestResponse) Err() error {
	return r.ResponseErr
}

type RestServer struct {
	port     int
	serverCh chan *RestRequest
}

func NewRestServer(port int, serverCh chan *RestRequest) *RestServer {
	return &RestServer{
		port:     port,
		serverCh: serverCh,
	}
}

// Router builds the URL space.
//   get all hosted participants.
//     -- curl -i -X GET http://<ownIP>:8080/v1/peers
//   get one participant.
//     -- curl -i -X GET http://<ownIP>:8080/v1/peer/<AS number>
//   get one RIB stage of a participant (input, local or output).
//     -- curl -i -X GET http://<ownIP>:8080/v1/peer/<AS number>/rib/<table>
//   longest match lookup in the local table.
//     -- curl -i -X GET http://<ownIP>:8080/v1/peer/<AS number>/lookup/<address>
//   get the virtual next hop assignments of a participant.
//     -- curl -i -X GET http://<ownIP>:8080/v1/peer/<AS number>/forwarding
func (rs *RestServer) Router() *mux.Router {
	peer := BASE_VERSION + PEER + "/{" + PARAM_AS + "}"

	r := mux.NewRouter()
	r.HandleFunc(BASE_VERSION+PEERS, rs.Peers).Methods("GET")
	r.HandleFunc(peer, rs.Peer).Methods("GET")
	r.HandleFunc(peer+"/rib/{"+PARAM_TABLE+"}", rs.PeerRib).Methods("GET")
	r.HandleFunc(peer+"/lookup/{"+PARAM_ADDR+"}", rs.PeerLookup).Methods("GET")
	r.HandleFunc(peer+"/forwarding", rs.PeerForwarding).Methods("GET")
	r.HandleFunc(STATS, stats_api.Handler)
	r.NotFoundHandler = http.HandlerFunc(NotFoundHandler)
	return r
}

func (rs *RestServer) Serve() {
	http.ListenAndServe(":"+strconv.Itoa(rs.port), rs.Router())
}

// exchange sends one request to the engine and writes the reply.
func (rs *RestServer) exchange(w http.ResponseWriter, req *RestRequest) {
	rs.serverCh <- req

	res := <-req.ResponseCh
	if e := res.Err(); e != nil {
		log.Debug(e.Error())
		http.Error(w, e.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(res.Data)
}

// peerRequest resolves the AS number path parameter and dispatches.
func (rs *RestServer) peerRequest(w http.ResponseWriter, r *http.Request, reqType int) {
	params := mux.Vars(r)
	as, err := strconv.ParseUint(params[PARAM_AS], 10, 32)
	if err != nil {
		errStr := "invalid AS number " + params[PARAM_AS]
		log.Debug(errStr)
		http.Error(w, errStr, http.StatusBadRequest)
		return
	}
	rs.exchange(w, NewRestRequest(reqType, uint32(as), params[PARAM_TABLE], params[PARAM_ADDR]))
}

func (rs *RestServer) Peers(w http.ResponseWriter, r *http.Request) {
	rs.exchange(w, NewRestRequest(REQ_PEERS, 0, "", ""))
}

func (rs *RestServer) Peer(w http.ResponseWriter, r *http.Request) {
	rs.peerRequest(w, r, REQ_PEER)
}

func (rs *RestServer) PeerRib(w http.ResponseWriter, r *http.Request) {
	rs.peerRequest(w, r, REQ_RIB)
}

func (rs *RestServer) PeerLookup(w http.ResponseWriter, r *http.Request) {
	rs.peerRequest(w, r, REQ_LOOKUP)
}

func (rs *RestServer) PeerForwarding(w http.ResponseWriter, r *http.Request) {
	rs.peerRequest(w, r, REQ_FORWARDING)
}

func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
}
