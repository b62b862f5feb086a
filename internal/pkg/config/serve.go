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

package config

import (
	"reflect"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ReadConfigfileServe re-reads the config file each time reloadCh fires
// and posts the parsed snapshot on configCh. The first read is fatal on
// error; later reads only warn, so a bad edit cannot take a running
// daemon down.
func ReadConfigfileServe(path, format string, configCh chan *Config, reloadCh chan bool) {
	cnt := 0
	for range reloadCh {
		c, err := ReadConfigFile(path, format)
		if err != nil {
			if cnt == 0 {
				log.WithFields(log.Fields{
					"Topic": "Config",
					"Error": err,
				}).Fatalf("Can't read config file %s", path)
			}
			log.WithFields(log.Fields{
				"Topic": "Config",
				"Error": err,
			}).Warningf("Can't read config file %s", path)
			continue
		}
		if cnt == 0 {
			log.WithFields(log.Fields{
				"Topic": "Config",
			}).Info("Finished reading the config file")
		}
		cnt++
		configCh <- c
	}
}

// WatchConfigFile calls the callback function anytime an update to the
// config file is detected. The callback runs on the watcher goroutine.
func WatchConfigFile(path, format string, callBack func()) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(format)
	v.OnConfigChange(func(e fsnotify.Event) {
		callBack()
	})
	v.WatchConfig()
}

func peerIndex(p Peer, peers []Peer) int {
	for i, q := range peers {
		if q.AS == p.AS {
			return i
		}
	}
	return -1
}

// UpdateConfig diffs a new config snapshot against the current one and
// returns the merged config together with the peers that were added,
// deleted, and updated. The global section never changes across reloads.
func UpdateConfig(curC *Config, newC *Config) (*Config, []Peer, []Peer, []Peer) {
	c := &Config{Feed: newC.Feed, API: newC.API}
	if curC == nil {
		c.Global = newC.Global
		curC = c
	} else {
		c.Global = curC.Global
	}

	added := []Peer{}
	deleted := []Peer{}
	updated := []Peer{}

	for _, p := range newC.Peers {
		if idx := peerIndex(p, curC.Peers); idx < 0 {
			added = append(added, p)
		} else if !reflect.DeepEqual(p, curC.Peers[idx]) {
			updated = append(updated, p)
		}
	}
	for _, p := range curC.Peers {
		if peerIndex(p, newC.Peers) < 0 {
			deleted = append(deleted, p)
		}
	}

	c.Peers = newC.Peers
	return c, added, deleted, updated
}
