/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package raft

import (
	"sort"
	"testing"
	"time"
)

// cluster is an in-memory test cluster: nodes exchange encoded messages
// through per-node inboxes, with optional link cuts to simulate
// partitions. Everything runs on the test goroutine.
type cluster struct {
	t       *testing.T
	nodes   map[int32]*Node
	inboxes map[int32][]envelope
	cut     map[[2]int32]bool
	applied map[int32][]Entry
}

type envelope struct {
	from int32
	data []byte
}

type clusterOption func(id int32, cfg *Config)

func newCluster(t *testing.T, size int32, opts ...clusterOption) *cluster {
	t.Helper()
	c := &cluster{
		t:       t,
		nodes:   make(map[int32]*Node),
		inboxes: make(map[int32][]envelope),
		cut:     make(map[[2]int32]bool),
		applied: make(map[int32][]Entry),
	}

	for id := int32(0); id < size; id++ {
		c.addNode(id, size, opts...)
	}
	for _, n := range c.nodes {
		if err := n.Start(); err != nil {
			t.Fatalf("Start node %d: %v", n.ID(), err)
		}
	}
	return c
}

func (c *cluster) addNode(id, size int32, opts ...clusterOption) *Node {
	c.t.Helper()
	cfg := DefaultConfig(id, size)
	cfg.Seed = int64(id)*7919 + 17
	cfg.Send = func(n *Node, peer int32, data []byte) {
		if c.blocked(n.ID(), peer) {
			return
		}
		if _, ok := c.nodes[peer]; !ok {
			return
		}
		c.inboxes[peer] = append(c.inboxes[peer], envelope{from: n.ID(), data: data})
	}
	cfg.Apply = func(n *Node, entry Entry) {
		c.applied[n.ID()] = append(c.applied[n.ID()], entry)
	}
	for _, opt := range opts {
		opt(id, &cfg)
	}

	n, err := New(cfg)
	if err != nil {
		c.t.Fatalf("New node %d: %v", id, err)
	}
	c.nodes[id] = n
	return n
}

func (c *cluster) blocked(from, to int32) bool {
	return c.cut[[2]int32{from, to}] || c.cut[[2]int32{to, from}]
}

// partition cuts every link between group and the rest of the cluster.
func (c *cluster) partition(group ...int32) {
	inGroup := make(map[int32]bool)
	for _, id := range group {
		inGroup[id] = true
	}
	for id := range c.nodes {
		if inGroup[id] {
			continue
		}
		for _, g := range group {
			c.cut[[2]int32{g, id}] = true
		}
	}
}

func (c *cluster) heal() {
	c.cut = make(map[[2]int32]bool)
}

// deliverAll drains every inbox, including messages generated while
// draining.
func (c *cluster) deliverAll() {
	for rounds := 0; rounds < 10000; rounds++ {
		progressed := false
		for id, n := range c.nodes {
			if len(c.inboxes[id]) == 0 {
				continue
			}
			env := c.inboxes[id][0]
			c.inboxes[id] = c.inboxes[id][1:]
			progressed = true
			n.Deliver(env.from, env.data)
		}
		if !progressed {
			return
		}
	}
	c.t.Fatal("message storm: inboxes never drained")
}

// tick advances a single node and then delivers all traffic.
func (c *cluster) tick(id int32, d time.Duration) {
	c.nodes[id].Tick(d)
	c.deliverAll()
}

// tickAll advances every node by d and delivers all traffic.
func (c *cluster) tickAll(d time.Duration) {
	ids := make([]int32, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c.nodes[id].Tick(d)
	}
	c.deliverAll()
}

// run advances the whole cluster by ticks steps of d.
func (c *cluster) run(ticks int, d time.Duration) {
	for i := 0; i < ticks; i++ {
		c.tickAll(d)
	}
}

// leader returns the unique leader, or nil when there is none.
func (c *cluster) leader() *Node {
	var leader *Node
	for _, n := range c.nodes {
		if n.Role() == Leader {
			if leader != nil {
				c.t.Fatalf("two leaders: node %d and node %d", leader.ID(), n.ID())
			}
			leader = n
		}
	}
	return leader
}

// electLeader fires node id's election timer and returns it as leader.
func (c *cluster) electLeader(id int32) *Node {
	c.t.Helper()
	c.tick(id, DefaultElectionTimeoutMax)
	n := c.nodes[id]
	if n.Role() != Leader {
		c.t.Fatalf("node %d did not win its election (role %s, term %d)", id, n.Role(), n.Term())
	}
	return n
}

// crash removes a node from the cluster, dropping its undelivered mail.
func (c *cluster) crash(id int32) {
	c.nodes[id].Close()
	delete(c.nodes, id)
	delete(c.inboxes, id)
}

func (c *cluster) close() {
	for _, n := range c.nodes {
		n.Close()
	}
}
