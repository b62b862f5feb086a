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

	"github.com/spf13/cobra"
)

type daemonStats struct {
	GoVersion    string  `json:"go_version"`
	GoOs         string  `json:"go_os"`
	GoArch       string  `json:"go_arch"`
	CpuNum       int     `json:"cpu_num"`
	GoroutineNum int     `json:"goroutine_num"`
	Gomaxprocs   int     `json:"gomaxprocs"`
	MemoryAlloc  uint64  `json:"memory_alloc"`
	MemorySys    uint64  `json:"memory_sys"`
	HeapAlloc    uint64  `json:"heap_alloc"`
	HeapSys      uint64  `json:"heap_sys"`
	HeapInuse    uint64  `json:"heap_inuse"`
	GcNum        uint32  `json:"gc_num"`
	GcPerSecond  float64 `json:"gc_per_second"`
}

func showStats() error {
	b := restGet("/stats")
	if globalOpts.Json {
		fmt.Println(string(b))
		return nil
	}
	s := daemonStats{}
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	fmt.Printf("pctrld on %s %s/%s\n", s.GoVersion, s.GoOs, s.GoArch)
	fmt.Printf("  CPUs: %d, GOMAXPROCS: %d, goroutines: %d\n", s.CpuNum, s.Gomaxprocs, s.GoroutineNum)
	fmt.Printf("  Memory: alloc %d, sys %d\n", s.MemoryAlloc, s.MemorySys)
	fmt.Printf("  Heap: alloc %d, sys %d, inuse %d\n", s.HeapAlloc, s.HeapSys, s.HeapInuse)
	fmt.Printf("  GC: %d runs, %.2f/s\n", s.GcNum, s.GcPerSecond)
	return nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use: cmdStats,
		Run: func(cmd *cobra.Command, args []string) {
			if err := showStats(); err != nil {
				exitWithError(err)
			}
		},
	}
}
