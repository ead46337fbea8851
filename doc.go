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

// Package buffer implements a multi-stage buffered sink for a log/metric
// pipeline. It sits between producers and a downstream consumer, absorbing
// bursts, applying backpressure, and optionally persisting events across
// restarts.
//
// A topology is an ordered chain of stages (memory, disk_v1, disk) wired
// together by overflow junctions: when the upstream stage of a junction
// reports Full, the junction's when_full policy decides whether the
// producer suspends, the event is dropped, or the event spills into the
// next stage. See package topology for construction and package config for
// declarative decoding of a stage list.
package buffer
