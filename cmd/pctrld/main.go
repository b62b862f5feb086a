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
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/getsentry/sentry-go"
	"github.com/jessevdk/go-flags"
	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sdn-ixp/sdx-parallel/internal/pkg/config"
	"github.com/sdn-ixp/sdx-parallel/internal/pkg/metrics"
	"github.com/sdn-ixp/sdx-parallel/internal/pkg/version"
	"github.com/sdn-ixp/sdx-parallel/pkg/api"
	"github.com/sdn-ixp/sdx-parallel/pkg/server"
)

func applyPeers(s *server.PctrlServer, added, deleted, updated []config.Peer) {
	for i := range added {
		p := &added[i]
		log.Infof("Peer %s is added", p.ID)
		if err := s.AddPeer(p); err != nil {
			log.WithFields(log.Fields{
				"Topic": "Config",
				"Key":   p.ID,
				"Error": err,
			}).Warn("Failed to add peer")
		}
	}
	for i := range deleted {
		p := &deleted[i]
		log.Infof("Peer %s is deleted", p.ID)
		if err := s.DeletePeer(p); err != nil {
			log.WithFields(log.Fields{
				"Topic": "Config",
				"Key":   p.ID,
				"Error": err,
			}).Warn("Failed to delete peer")
		}
	}
	for i := range updated {
		p := &updated[i]
		log.Infof("Peer %s is updated", p.ID)
		if err := s.UpdatePeer(p); err != nil {
			log.WithFields(log.Fields{
				"Topic": "Config",
				"Key":   p.ID,
				"Error": err,
			}).Warn("Failed to update peer")
		}
	}
}

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var opts struct {
		ConfigFile        string  `short:"f" long:"config-file" description:"specifying a config file"`
		ConfigType        string  `short:"t" long:"config-type" description:"specifying config type (toml, yaml, json)" default:"toml"`
		ConfigAutoReload  bool    `short:"a" long:"config-auto-reload" description:"activate config auto reload on changes"`
		LogLevel          string  `short:"l" long:"log-level" description:"specifying log level"`
		LogPlain          bool    `short:"p" long:"log-plain" description:"use plain format for logging (json by default)"`
		UseSyslog         string  `short:"s" long:"syslog" description:"use syslogd"`
		Facility          string  `long:"syslog-facility" description:"specify syslog facility"`
		DisableStdlog     bool    `long:"disable-stdlog" description:"disable standard logging"`
		CPUs              int     `long:"cpus" description:"specify the number of CPUs to be used"`
		Dry               bool    `short:"d" long:"dry-run" description:"check configuration"`
		PProfHost         string  `long:"pprof-host" description:"specify the host that pctrld listens on for pprof and metrics" default:"localhost:6060"`
		PProfDisable      bool    `long:"pprof-disable" description:"disable pprof profiling"`
		MetricsPath       string  `long:"metrics-path" description:"specify path for prometheus metrics, empty value disables them" default:"/metrics"`
		UseSdNotify       bool    `long:"sdnotify" description:"use sd_notify protocol"`
		Version           bool    `long:"version" description:"show version number"`
		SentryDSN         string  `long:"sentry-dsn" description:"Sentry DSN" default:""`
		SentryEnvironment string  `long:"sentry-environment" description:"Sentry environment" default:"development"`
		SentrySampleRate  float64 `long:"sentry-sample-rate" description:"Sentry traces sample rate" default:"1.0"`
		SentryDebug       bool    `long:"sentry-debug" description:"Sentry debug mode"`
	}
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	if opts.Version {
		fmt.Println("pctrld version", version.Version())
		os.Exit(0)
	}

	// if Sentry DSN is provided, initialize Sentry
	// We would like to capture errors and exceptions, but not traces
	if opts.SentryDSN != "" {
		log.Debugf("Initializing Sentry, Env: %s, Release: %s, SampleRate: %f, Debug: %t",
			opts.SentryEnvironment, version.Version(), opts.SentrySampleRate, opts.SentryDebug)
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         opts.SentryDSN,
			SampleRate:  opts.SentrySampleRate,
			Debug:       opts.SentryDebug,
			Release:     version.Version(),
			Environment: opts.SentryEnvironment,
			// Disable tracing as it's not relevant for now
			EnableTracing:    false,
			TracesSampleRate: 0.0,
		})
		if err != nil {
			log.Fatalf("sentry.Init: %s", err)
		}
		// Flush buffered events before the program terminates.
		defer sentry.Flush(2 * time.Second)

		if opts.SentryDebug {
			sentry.CaptureMessage("Sentry debug mode enabled on pctrld")
		}
	}

	if opts.CPUs == 0 {
		runtime.GOMAXPROCS(runtime.NumCPU())
	} else {
		if runtime.NumCPU() < opts.CPUs {
			log.Errorf("Only %d CPUs are available but %d is specified", runtime.NumCPU(), opts.CPUs)
			os.Exit(1)
		}
		runtime.GOMAXPROCS(opts.CPUs)
	}

	switch opts.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	if opts.DisableStdlog {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stdout)
	}

	if opts.UseSyslog != "" {
		if err := addSyslogHook(opts.UseSyslog, opts.Facility); err != nil {
			log.Error("Unable to connect to syslog daemon, ", opts.UseSyslog)
		}
	}

	if opts.LogPlain {
		if opts.DisableStdlog {
			log.SetFormatter(&log.TextFormatter{
				DisableColors: true,
			})
		}
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}

	if opts.ConfigFile == "" {
		opts.ConfigFile = "pctrld.conf"
	}

	if opts.Dry {
		c, err := config.ReadConfigFile(opts.ConfigFile, opts.ConfigType)
		if err != nil {
			log.WithFields(log.Fields{
				"Topic": "Config",
				"Error": err,
			}).Fatalf("Can't read config file %s", opts.ConfigFile)
		}
		log.WithFields(log.Fields{
			"Topic": "Config",
		}).Info("Finished reading the config file")
		if opts.LogLevel == "debug" {
			pretty.Println(c)
		}
		os.Exit(0)
	}

	log.Info("pctrld started")
	s := server.NewPctrlServer()
	metrics.Register()
	prometheus.MustRegister(metrics.NewPctrlCollector(s))
	go s.ServeApiRequests()

	configCh := make(chan *config.Config)
	reloadCh := make(chan bool, 1)
	go config.ReadConfigfileServe(opts.ConfigFile, opts.ConfigType, configCh, reloadCh)
	reloadCh <- true

	c := <-configCh

	feed, err := server.NewFeed(&c.Feed)
	if err != nil {
		log.WithFields(log.Fields{
			"Topic": "Feed",
			"Error": err,
		}).Fatal("Failed to connect to the route server feed")
	}
	s.SetSender(feed)
	ctx, cancel := context.WithCancel(context.Background())
	go feed.Run(ctx, s.HandleRecord)

	restServer := api.NewRestServer(c.API.Port, s.RestReqCh)
	go restServer.Serve()

	httpMux := http.NewServeMux()
	if !opts.PProfDisable {
		httpMux.HandleFunc("/debug/pprof/", pprof.Index)
		httpMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		httpMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		httpMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		httpMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	if opts.MetricsPath != "" {
		httpMux.Handle(opts.MetricsPath, promhttp.Handler())
	}
	httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	httpMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !feed.IsJoined() {
			http.Error(w, "waiting for feed partitions", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	go func() {
		log.Println(http.ListenAndServe(opts.PProfHost, httpMux))
	}()

	currentConfig, added, deleted, updated := config.UpdateConfig(nil, c)
	applyPeers(s, added, deleted, updated)

	if opts.UseSdNotify {
		if status, err := daemon.SdNotify(false, daemon.SdNotifyReady); !status {
			if err != nil {
				log.Warnf("Failed to send notification via sd_notify(): %s", err)
			} else {
				log.Warnf("The socket sd_notify() isn't available")
			}
		}
	}

	signal.Notify(sigCh, syscall.SIGHUP)

	if opts.ConfigAutoReload {
		log.WithFields(log.Fields{
			"Topic": "Config",
		}).Info("Watching for config changes to trigger auto-reload")

		// Writing to the config may trigger many events in quick successions
		// To prevent abusive reloads, we ignore any event in a 100ms window
		rateLimiter := rate.Sometimes{Interval: 100 * time.Millisecond}

		config.WatchConfigFile(opts.ConfigFile, opts.ConfigType, func() {
			rateLimiter.Do(func() {
				log.WithFields(log.Fields{
					"Topic": "Config",
				}).Info("Config changes detected, reloading configuration")

				sigCh <- syscall.SIGHUP
			})
		})
	}

	for {
		select {
		case newConfig := <-configCh:
			log.WithFields(log.Fields{
				"Topic": "Config",
			}).Info("Applying the new config")
			currentConfig, added, deleted, updated = config.UpdateConfig(currentConfig, newConfig)
			applyPeers(s, added, deleted, updated)
		case <-s.ShutdownCh():
			log.Info("shutdown notification received, stopping pctrld server")
			cancel()
			feed.Close()
			s.Stop()
			if opts.UseSdNotify {
				daemon.SdNotify(false, daemon.SdNotifyStopping)
			}
			return
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				log.Info("reload the config file")
				// A reload may already be queued. One pass over the
				// file covers both requests.
				select {
				case reloadCh <- true:
				default:
				}
				continue
			}

			log.Info("stopping pctrld server")
			cancel()
			feed.Close()
			s.Stop()
			if opts.UseSdNotify {
				daemon.SdNotify(false, daemon.SdNotifyStopping)
			}
			return
		}
	}
}
