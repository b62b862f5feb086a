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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/parnurzeal/gorequest"
)

const (
	cmdPeers      = "peers"
	cmdPeer       = "peer"
	cmdRib        = "rib"
	cmdLookup     = "lookup"
	cmdForwarding = "forwarding"
	cmdStats      = "stats"
)

// restGet fetches one resource from the pctrld REST API and exits on
// transport or API errors.
func restGet(path string) []byte {
	r := gorequest.New()
	url := fmt.Sprintf("http://%s:%d%s", globalOpts.Host, globalOpts.Port, path)
	if globalOpts.Debug {
		fmt.Println(url)
	}
	resp, body, errs := r.Get(url).End()
	if len(errs) > 0 {
		fmt.Print("Failed to connect to pctrld. It runs?\n")
		if globalOpts.Debug {
			fmt.Println(errs)
		}
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		exitWithError(fmt.Errorf("%s", strings.TrimSpace(body)))
	}
	if globalOpts.Debug {
		fmt.Println(body)
	}
	return []byte(body)
}

func get(resource string) []byte {
	return restGet("/v1/" + resource)
}

func printError(err error) {
	if globalOpts.Json {
		j, _ := json.Marshal(struct {
			Error string `json:"error"`
		}{Error: err.Error()})
		fmt.Println(string(j))
	} else {
		fmt.Println(err)
	}
}

func exitWithError(err error) {
	printError(err)
	os.Exit(1)
}
