package gateway

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	servicequeue "gatekeeper/app/core/queue"
	"gatekeeper/app/pkg/types"
)

// DefaultGateway fans inbound messages from registered channels into the
// single intake agent through the ordered execution queue.
type DefaultGateway struct {
	mu       sync.RWMutex
	agent    types.Agent
	channels map[string]types.Channel

	executionQueue *servicequeue.Queue
	enqueueTimeout time.Duration

	processedMessages uint64
	lastMessageUnix   atomic.Int64
	startedUnix       atomic.Int64
}

type HealthStatus struct {
	Started            bool
	StartedAt          time.Time
	RegisteredChannels []string
	AgentName          string
	ProcessedMessages  uint64
	LastMessageAt      time.Time
	Queue              servicequeue.Stats
}

func NewGateway(agent types.Agent) *DefaultGateway {
	return &DefaultGateway{
		agent:    agent,
		channels: make(map[string]types.Channel),
	}
}

func (g *DefaultGateway) SetAgent(agent types.Agent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.agent = agent
}

func (g *DefaultGateway) RegisterChannel(c types.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
	log.Printf("[Gateway] Registered channel: %s", c.ID())
}

func (g *DefaultGateway) SetExecutionQueue(q *servicequeue.Queue, enqueueTimeout time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.executionQueue = q
	g.enqueueTimeout = enqueueTimeout
}

// Start runs all channels until ctx is cancelled. Agent failures are
// logged, never propagated back into the channel loops; the agent sends
// its own user-facing error replies.
func (g *DefaultGateway) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	g.startedUnix.Store(time.Now().Unix())

	handler := func(msg types.Message) {
		atomic.AddUint64(&g.processedMessages, 1)
		g.lastMessageUnix.Store(time.Now().Unix())
		log.Printf("[Gateway] Received message thread=%s user=%s", msg.ThreadID, msg.AuthorID)

		if g.queueEnabled() {
			g.dispatchWithQueue(ctx, msg)
			return
		}
		if err := g.process(ctx, msg); err != nil {
			log.Printf("[Gateway] Processing failed thread=%s: %v", msg.ThreadID, err)
		}
	}

	g.mu.RLock()
	for _, c := range g.channels {
		wg.Add(1)
		go func(ch types.Channel) {
			defer wg.Done()
			if err := ch.Start(ctx, handler); err != nil && ctx.Err() == nil {
				log.Printf("[Gateway] Channel %s error: %v", ch.ID(), err)
			}
		}(c)
	}
	g.mu.RUnlock()

	log.Println("[Gateway] Started all channels")
	wg.Wait()
	return nil
}

func (g *DefaultGateway) queueEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.executionQueue != nil
}

func (g *DefaultGateway) dispatchWithQueue(ctx context.Context, msg types.Message) {
	g.mu.RLock()
	q := g.executionQueue
	timeout := g.enqueueTimeout
	g.mu.RUnlock()

	job := servicequeue.Job{
		Run: func(runCtx context.Context) error {
			if err := g.process(runCtx, msg); err != nil {
				log.Printf("[Gateway] Queue job failed thread=%s: %v", msg.ThreadID, err)
				return err
			}
			return nil
		},
	}

	enqueueCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		enqueueCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	if _, err := q.EnqueueContext(enqueueCtx, job); err != nil {
		log.Printf("[Gateway] Queue enqueue failed: %v", err)
	}
}

func (g *DefaultGateway) process(ctx context.Context, msg types.Message) error {
	g.mu.RLock()
	agent := g.agent
	g.mu.RUnlock()
	if agent == nil {
		return fmt.Errorf("gateway has no registered agent")
	}
	return agent.Process(ctx, msg)
}

func (g *DefaultGateway) HealthStatus() HealthStatus {
	g.mu.RLock()
	channels := make([]string, 0, len(g.channels))
	for id := range g.channels {
		channels = append(channels, id)
	}
	agentName := ""
	if g.agent != nil {
		agentName = g.agent.Name()
	}
	var queueStats servicequeue.Stats
	if g.executionQueue != nil {
		queueStats = g.executionQueue.Stats()
	}
	g.mu.RUnlock()
	sort.Strings(channels)

	status := HealthStatus{
		RegisteredChannels: channels,
		AgentName:          agentName,
		ProcessedMessages:  atomic.LoadUint64(&g.processedMessages),
		Queue:              queueStats,
	}
	if started := g.startedUnix.Load(); started > 0 {
		status.Started = true
		status.StartedAt = time.Unix(started, 0).UTC()
	}
	if last := g.lastMessageUnix.Load(); last > 0 {
		status.LastMessageAt = time.Unix(last, 0).UTC()
	}
	return status
}
