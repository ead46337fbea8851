// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Command bufferstress drives a configured buffer topology with
// concurrent producers and a draining consumer for a fixed duration,
// reporting throughput and drop counts. Adapted from
// scripts/cmd/stress_pipeline/main.go: pflag flags plus an optional
// config file for logging and paths (elastic-agent-libs/config, paths,
// service); the flags do not override values from the config file. It is
// trimmed to this module's single concern instead of the full
// beat.Info/outputs wiring.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	conf "github.com/elastic/elastic-agent-libs/config"
	logpcfg "github.com/elastic/elastic-agent-libs/logp/configure"
	"github.com/elastic/elastic-agent-libs/paths"
	"github.com/elastic/elastic-agent-libs/service"
	"github.com/spf13/pflag"

	"github.com/obsbuffer/buffer"
	bufconfig "github.com/obsbuffer/buffer/config"
	"github.com/obsbuffer/buffer/topology"
)

type stressConfig struct {
	Path    paths.Path
	Logging *conf.C
}

type stringEvent string

func (s stringEvent) ByteSize() int { return len(s) }

type stringCodec struct{}

func (stringCodec) Encode(s stringEvent) ([]byte, error) { return []byte(s), nil }
func (stringCodec) Decode(b []byte) (stringEvent, error) { return stringEvent(b), nil }

var (
	duration         time.Duration
	producers        int
	dataDir          string
	bufferID         string
	configFile       string
	bufferConfigFile string
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	pflag.DurationVar(&duration, "duration", 10*time.Second, "stress test duration")
	pflag.IntVar(&producers, "producers", 4, "number of concurrent producers")
	pflag.StringVar(&dataDir, "data-dir", "", "data directory for disk stages, if any")
	pflag.StringVar(&bufferID, "buffer-id", "stress", "buffer id namespacing disk files")
	pflag.StringVar(&configFile, "config", "", "beat-style config file (logging, paths)")
	pflag.StringVar(&bufferConfigFile, "buffer-config", "", "buffer topology config file (YAML stage list)")
	pflag.Parse()

	service.BeforeRun()
	defer service.Cleanup()

	var cfg stressConfig
	if configFile != "" {
		c, err := conf.LoadFile(configFile)
		if err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
		if err := c.Unpack(&cfg); err != nil {
			return fmt.Errorf("unpacking config: %w", err)
		}
	}

	if err := paths.InitPaths(&cfg.Path); err != nil {
		return err
	}
	if err := logpcfg.Logging("bufferstress", cfg.Logging); err != nil {
		return err
	}

	topologyConfig, err := loadTopologyConfig(bufferConfigFile)
	if err != nil {
		return err
	}

	settings := topology.Settings{DataDir: dataDir, BufferID: bufferID}
	sender, receiver, acker, err := topology.BuildWithSettings[stringEvent](topologyConfig, stringCodec{}, settings)
	if err != nil {
		return fmt.Errorf("building topology: %w", err)
	}
	defer acker.Close()

	return runStress(sender, receiver, acker, duration, producers)
}

// loadTopologyConfig defaults to a single memory stage at
// buffer.DefaultMaxEvents when no --buffer-config file was given, so the
// tool is usable with zero configuration for a quick smoke run.
func loadTopologyConfig(path string) (bufconfig.TopologyConfig, error) {
	if path == "" {
		return bufconfig.TopologyConfig{Stages: []bufconfig.StageDescriptor{
			{Type: bufconfig.StageMemory, MaxEvents: buffer.DefaultMaxEvents, WhenFull: buffer.WhenFullBlock},
		}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return bufconfig.TopologyConfig{}, fmt.Errorf("reading buffer config: %w", err)
	}
	return bufconfig.Parse(data)
}

func runStress(sender buffer.Sender[stringEvent], receiver buffer.Receiver[stringEvent], acker *buffer.Acker, duration time.Duration, producers int) error {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var sent, received, dropped int64

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			payload := stringEvent(fmt.Sprintf("producer-%d-event", id))
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				outcome, err := sender.Send(ctx, payload)
				if err != nil {
					return
				}
				switch outcome {
				case buffer.Accepted:
					atomic.AddInt64(&sent, 1)
				case buffer.Dropped:
					atomic.AddInt64(&dropped, 1)
				}
			}
		}(p)
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			event, ok, err := receiver.Recv(ctx)
			if err != nil || !ok {
				return
			}
			_ = event
			atomic.AddInt64(&received, 1)
			_ = acker.Ack(1)
		}
	}()

	wg.Wait()
	sender.Close()
	<-consumerDone

	fmt.Printf("sent=%d received=%d dropped=%d\n",
		atomic.LoadInt64(&sent), atomic.LoadInt64(&received), atomic.LoadInt64(&dropped))
	return nil
}
