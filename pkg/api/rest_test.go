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
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine answers requests the way the route engine would, echoing
// enough of the request to assert the parameter plumbing.
func fakeEngine(ch chan *RestRequest) {
	for req := range ch {
		res := &RestResponse{}
		switch req.RequestType {
		case REQ_PEERS:
			res.Data = []byte(`[{"id":"as100","as":100}]`)
		case REQ_PEER:
			if req.AS != 100 {
				res.ResponseErr = fmt.Errorf("peer as%d does not exist", req.AS)
				break
			}
			res.Data = []byte(`{"id":"as100","as":100}`)
		case REQ_RIB:
			if req.Table != "input" && req.Table != "local" && req.Table != "output" {
				res.ResponseErr = fmt.Errorf("unknown table %q", req.Table)
				break
			}
			res.Data = []byte(fmt.Sprintf(`{"as":%d,"table":%q}`, req.AS, req.Table))
		case REQ_LOOKUP:
			res.Data = []byte(fmt.Sprintf(`{"as":%d,"addr":%q}`, req.AS, req.Key))
		case REQ_FORWARDING:
			res.Data = []byte(`{}`)
		default:
			res.ResponseErr = fmt.Errorf("unsupported request type %d", req.RequestType)
		}
		req.ResponseCh <- res
	}
}

func newTestRestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ch := make(chan *RestRequest, 1)
	go fakeEngine(ch)
	srv := httptest.NewServer(NewRestServer(REST_PORT, ch).Router())
	t.Cleanup(func() {
		srv.Close()
		close(ch)
	})
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func TestRestPeers(t *testing.T) {
	srv := newTestRestServer(t)

	code, body := get(t, srv.URL+"/v1/peers")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"id":"as100","as":100}]`, body)
}

func TestRestPeer(t *testing.T) {
	srv := newTestRestServer(t)

	code, body := get(t, srv.URL+"/v1/peer/100")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"as100","as":100}`, body)

	code, _ = get(t, srv.URL+"/v1/peer/200")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestRestPeerRib(t *testing.T) {
	srv := newTestRestServer(t)

	code, body := get(t, srv.URL+"/v1/peer/100/rib/local")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"as":100,"table":"local"}`, body)

	code, _ = get(t, srv.URL+"/v1/peer/100/rib/bogus")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestRestPeerLookup(t *testing.T) {
	srv := newTestRestServer(t)

	code, body := get(t, srv.URL+"/v1/peer/100/lookup/8.8.8.8")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"as":100,"addr":"8.8.8.8"}`, body)
}

func TestRestPeerForwarding(t *testing.T) {
	srv := newTestRestServer(t)

	code, body := get(t, srv.URL+"/v1/peer/100/forwarding")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{}`, body)
}

func TestRestInvalidAS(t *testing.T) {
	srv := newTestRestServer(t)

	code, body := get(t, srv.URL+"/v1/peer/abc/rib/local")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "invalid AS number")
}

func TestRestNotFound(t *testing.T) {
	srv := newTestRestServer(t)

	code, _ := get(t, srv.URL+"/v1/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRestStats(t *testing.T) {
	srv := newTestRestServer(t)

	code, body := get(t, srv.URL+"/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_version")
}
