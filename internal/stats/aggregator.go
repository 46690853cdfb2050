// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stats implements the Statistics Aggregator: a periodic task
// per running flow that polls RTP jitterbuffer stats from the pipeline's
// elements and samples per-thread CPU usage for every thread the pipeline
// manager registered at startup. Level meters are reactive (bus-driven) and
// are not handled here; see internal/pipeline/builder's meter builder.
package stats

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// DefaultInterval is how often the aggregator polls jitterbuffers and
// samples thread CPU when the caller doesn't override it.
const DefaultInterval = 2 * time.Second

// EventSink is the narrow interface the aggregator publishes onto,
// satisfied by the event broadcaster.
type EventSink interface {
	Publish(model.StromEvent)
}

// cpuSample is one thread's cumulative CPU reading, kept so the next poll
// can compute a windowed rate.
type cpuSample struct {
	ticks uint64
	at    time.Time
}

// Aggregator runs one ticker-driven periodic task per flow.
type Aggregator struct {
	events   EventSink
	interval time.Duration

	// readTicks reads one thread's cumulative CPU ticks; a seam so tests
	// can drive the windowed-rate computation without a real /proc.
	readTicks func(pid, tid int) (uint64, error)

	mu      sync.Mutex
	threads map[string][]int             // flowID -> registered OS thread ids
	prev    map[string]map[int]cpuSample // flowID -> tid -> last reading
}

// New builds an Aggregator publishing onto events, polling at interval (or
// DefaultInterval if zero).
func New(events EventSink, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Aggregator{
		events:    events,
		interval:  interval,
		readTicks: readThreadCPUTicks,
		threads:   map[string][]int{},
		prev:      map[string]map[int]cpuSample{},
	}
}

// Install registers tids as the OS threads belonging to flowID, for later
// CPU sampling, and returns a function that unregisters them. It
// implements manager.ThreadRegistry's Install half in spirit; the actual
// tid discovery is supplied by the caller (the native framework binding
// knows its own streaming threads, which this package cannot).
func (a *Aggregator) Install(flowID string, tids ...int) func() {
	a.mu.Lock()
	a.threads[flowID] = append(a.threads[flowID], tids...)
	a.mu.Unlock()
	return func() { a.Purge(flowID) }
}

// Purge removes flowID's registered threads and their sampling history.
func (a *Aggregator) Purge(flowID string) {
	a.mu.Lock()
	delete(a.threads, flowID)
	delete(a.prev, flowID)
	a.mu.Unlock()
}

// Start begins polling pipeline for flowID until the returned stop func is
// called or ctx is canceled. It satisfies manager.StatsTask.
func (a *Aggregator) Start(ctx context.Context, flowID string, pipeline framework.Pipeline) func() {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				a.pollJitterbuffers(flowID, pipeline)
				a.sampleThreadCPU(flowID)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// jitterbufferStatKeys are the structure fields downstream consumers of
// jitterbuffer stats events key on; the names are part of the wire contract.
var jitterbufferStatKeys = []string{
	"num_pushed", "num_lost", "num_late", "num_duplicates",
	"avg_jitter_ns", "rtx_count", "rtx_success_count", "rtx_per_packet", "rtx_rtt_ns",
}

func (a *Aggregator) pollJitterbuffers(flowID string, pipeline framework.Pipeline) {
	for _, elem := range pipeline.Elements() {
		if elem.Factory() != "rtpjitterbuffer" {
			continue
		}
		stats, ok := elem.GetProperty("stats")
		if !ok {
			continue
		}
		fields, ok := stats.(map[string]any)
		if !ok {
			continue
		}
		structure := make(map[string]any, len(jitterbufferStatKeys))
		for _, k := range jitterbufferStatKeys {
			if v, present := fields[k]; present {
				structure[k] = v
			}
		}
		pipeline.Post(framework.Message{
			Type:      framework.MessageElement,
			Source:    elem.ID(),
			Structure: structure,
		})
	}
}

// sampleThreadCPU reads /proc/<pid>/task/<tid>/stat for every thread
// registered for flowID and publishes a ThreadCpu event carrying each
// thread's windowed CPU usage: the delta of cumulative CPU ticks between
// this poll and the previous one, as a percentage of the wall-clock time
// between them. The first poll for a thread only primes its baseline and
// reports nothing.
func (a *Aggregator) sampleThreadCPU(flowID string) {
	a.mu.Lock()
	tids := append([]int(nil), a.threads[flowID]...)
	a.mu.Unlock()
	if len(tids) == 0 {
		return
	}

	pid := os.Getpid()
	now := time.Now()
	threads := make([]model.ThreadCpuStats, 0, len(tids))
	for _, tid := range tids {
		ticks, err := a.readTicks(pid, tid)
		if err != nil {
			continue
		}

		a.mu.Lock()
		if a.prev[flowID] == nil {
			a.prev[flowID] = map[int]cpuSample{}
		}
		last, hasLast := a.prev[flowID][tid]
		a.prev[flowID][tid] = cpuSample{ticks: ticks, at: now}
		a.mu.Unlock()

		if !hasLast {
			continue
		}
		elapsed := now.Sub(last.at).Seconds()
		if elapsed <= 0 || ticks < last.ticks {
			continue
		}
		cpuSeconds := float64(ticks-last.ticks) / clockTicksPerSec
		threads = append(threads, model.ThreadCpuStats{
			ThreadID: uint64(tid),
			CPUUsage: float32(cpuSeconds / elapsed * 100),
			FlowID:   flowID,
		})
	}
	if len(threads) == 0 {
		return
	}

	a.publish(model.StromEvent{Type: model.EventThreadCpu, Data: model.ThreadCpuData{
		Threads:   threads,
		Timestamp: now.UnixMilli(),
	}})
}

const clockTicksPerSec = 100

// readThreadCPUTicks reads utime+stime (fields 14/15 of the stat file, in
// clock ticks) for one thread: the cumulative CPU time it has consumed
// since it started.
func readThreadCPUTicks(pid, tid int) (uint64, error) {
	path := fmt.Sprintf("/proc/%d/task/%d/stat", pid, tid)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	// Fields after the parenthesized comm field are space-separated; comm
	// itself may contain spaces, so split on the last ')'.
	closeParen := strings.LastIndexByte(string(data), ')')
	if closeParen < 0 {
		return 0, fmt.Errorf("stat: malformed line")
	}
	fields := strings.Fields(string(data)[closeParen+1:])
	const utimeIdx, stimeIdx = 11, 12 // 0-indexed after state field
	if len(fields) <= stimeIdx {
		return 0, fmt.Errorf("stat: too few fields")
	}
	utime, err := strconv.ParseUint(fields[utimeIdx], 10, 64)
	if err != nil {
		return 0, err
	}
	stime, err := strconv.ParseUint(fields[stimeIdx], 10, 64)
	if err != nil {
		return 0, err
	}
	return utime + stime, nil
}

func (a *Aggregator) publish(evt model.StromEvent) {
	if a.events != nil {
		a.events.Publish(evt)
	}
}
