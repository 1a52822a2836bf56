// Package progress maps internal stage progress into a monotonic overall
// percentage and pushes update events to subscribers of a job. The registry
// is keyed strictly by job id, so independent jobs never contend.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-tailor/internal/types"
)

// subscriberBuffer is the per-subscriber channel depth. Delivery is
// best-effort: a subscriber that falls this far behind loses events rather
// than blocking the pipeline.
const subscriberBuffer = 16

// DefaultStageWeights is the default share of overall progress each stage
// contributes. The exact split is tunable configuration, not a contract.
func DefaultStageWeights() map[types.Stage]float64 {
	return map[types.Stage]float64{
		types.StageEvaluate:  0.25,
		types.StagePlan:      0.25,
		types.StageImplement: 0.35,
		types.StageVerify:    0.15,
	}
}

// Broadcaster fans progress events out to per-job subscriber lists.
// The overall percentage it emits never regresses within a job, even when a
// stage is retried and restarts its internal percentage from zero.
type Broadcaster struct {
	mu      sync.Mutex
	weights map[types.Stage]float64
	jobs    map[uuid.UUID]*jobState
	// done holds ids of jobs whose registry entry was torn down, so a late
	// Subscribe gets a closed channel instead of a fresh entry nothing
	// will ever close.
	done map[uuid.UUID]struct{}
	now  func() time.Time
}

type jobState struct {
	subscribers map[int]chan types.ProgressEvent
	nextSubID   int
	completed   map[types.Stage]bool
	lastOverall float64
	closed      bool
}

// NewBroadcaster creates a broadcaster with the given stage weights; nil
// uses DefaultStageWeights.
func NewBroadcaster(weights map[types.Stage]float64) *Broadcaster {
	if weights == nil {
		weights = DefaultStageWeights()
	}
	return &Broadcaster{
		weights: weights,
		jobs:    make(map[uuid.UUID]*jobState),
		done:    make(map[uuid.UUID]struct{}),
		now:     time.Now,
	}
}

// job returns the registry entry for jobID, creating one on first use.
// Finished jobs return nil; their entries are never resurrected.
func (b *Broadcaster) job(jobID uuid.UUID) *jobState {
	if _, finished := b.done[jobID]; finished {
		return nil
	}
	js, ok := b.jobs[jobID]
	if !ok {
		js = &jobState{
			subscribers: make(map[int]chan types.ProgressEvent),
			completed:   make(map[types.Stage]bool),
		}
		b.jobs[jobID] = js
	}
	return js
}

// Subscribe registers a subscriber for a job's progress stream. The returned
// cancel function must be called when the subscriber disconnects; it closes
// the channel.
func (b *Broadcaster) Subscribe(jobID uuid.UUID) (<-chan types.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	js := b.job(jobID)
	ch := make(chan types.ProgressEvent, subscriberBuffer)
	if js == nil || js.closed {
		close(ch)
		return ch, func() {}
	}
	id := js.nextSubID
	js.nextSubID++
	js.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := js.subscribers[id]; ok {
			delete(js.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish emits a progress event for a stage at stagePct percent complete.
// The overall percentage is computed from the stage-weight table and clamped
// so it never drops below the last emitted value for the job.
func (b *Broadcaster) Publish(jobID uuid.UUID, stage types.Stage, stagePct float64, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(jobID, stage, stagePct, message)
}

// CompleteStage marks a stage's full weight as earned and emits the
// corresponding event.
func (b *Broadcaster) CompleteStage(jobID uuid.UUID, stage types.Stage, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(jobID, stage, 100, message)
	if js := b.job(jobID); js != nil {
		js.completed[stage] = true
	}
}

func (b *Broadcaster) publishLocked(jobID uuid.UUID, stage types.Stage, stagePct float64, message string) {
	js := b.job(jobID)
	if js == nil || js.closed {
		return
	}
	if stagePct < 0 {
		stagePct = 0
	}
	if stagePct > 100 {
		stagePct = 100
	}

	earned := 0.0
	for s, done := range js.completed {
		if done && s != stage {
			earned += b.weights[s]
		}
	}
	overall := 100 * (earned + b.weights[stage]*stagePct/100)
	if overall < js.lastOverall {
		overall = js.lastOverall
	}
	if overall > 100 {
		overall = 100
	}
	js.lastOverall = overall

	event := types.ProgressEvent{
		JobID:             jobID,
		Stage:             stage,
		StagePercentage:   stagePct,
		OverallPercentage: overall,
		Message:           message,
		Timestamp:         b.now(),
	}

	for id, sub := range js.subscribers {
		select {
		case sub <- event:
		default:
			// Slow or disconnected subscriber: prune it rather than
			// block the pipeline.
			delete(js.subscribers, id)
			close(sub)
		}
	}
}

// Close tears down a job's registry entry after a grace period for slow
// subscribers. Events published after Close are dropped, and subscribers
// arriving after Close get an already-closed channel.
func (b *Broadcaster) Close(jobID uuid.UUID, grace time.Duration) {
	b.mu.Lock()
	b.done[jobID] = struct{}{}
	js, ok := b.jobs[jobID]
	if !ok {
		b.mu.Unlock()
		return
	}
	js.closed = true
	b.mu.Unlock()

	time.AfterFunc(grace, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for id, sub := range js.subscribers {
			delete(js.subscribers, id)
			close(sub)
		}
		delete(b.jobs, jobID)
	})
}
