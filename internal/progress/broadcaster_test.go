package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-tailor/internal/types"
)

func drain(ch <-chan types.ProgressEvent) []types.ProgressEvent {
	var events []types.ProgressEvent
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestPublishComputesWeightedOverall(t *testing.T) {
	b := NewBroadcaster(nil)
	jobID := uuid.New()
	ch, cancel := b.Subscribe(jobID)
	defer cancel()

	b.Publish(jobID, types.StageEvaluate, 50, "halfway through evaluation")
	b.CompleteStage(jobID, types.StageEvaluate, "evaluated")
	b.Publish(jobID, types.StagePlan, 40, "planning")

	events := drain(ch)
	require.Len(t, events, 3)
	assert.InDelta(t, 12.5, events[0].OverallPercentage, 1e-9)
	assert.InDelta(t, 25.0, events[1].OverallPercentage, 1e-9)
	assert.InDelta(t, 35.0, events[2].OverallPercentage, 1e-9)
	assert.Equal(t, jobID, events[0].JobID)
}

func TestOverallNeverRegresses(t *testing.T) {
	b := NewBroadcaster(nil)
	jobID := uuid.New()
	ch, cancel := b.Subscribe(jobID)
	defer cancel()

	b.Publish(jobID, types.StageEvaluate, 80, "almost done")
	// A validator retry restarts the stage's internal percentage at zero;
	// the overall number must hold.
	b.Publish(jobID, types.StageEvaluate, 0, "retrying")
	b.Publish(jobID, types.StageEvaluate, 30, "second attempt")

	events := drain(ch)
	require.Len(t, events, 3)
	last := 0.0
	for _, e := range events {
		assert.GreaterOrEqual(t, e.OverallPercentage, last)
		last = e.OverallPercentage
	}
	assert.InDelta(t, 20.0, events[0].OverallPercentage, 1e-9)
	assert.InDelta(t, 20.0, events[1].OverallPercentage, 1e-9)
}

func TestCustomWeights(t *testing.T) {
	b := NewBroadcaster(map[types.Stage]float64{
		types.StageEvaluate:  0.1,
		types.StagePlan:      0.2,
		types.StageImplement: 0.6,
		types.StageVerify:    0.1,
	})
	jobID := uuid.New()
	ch, cancel := b.Subscribe(jobID)
	defer cancel()

	b.CompleteStage(jobID, types.StageEvaluate, "done")
	b.CompleteStage(jobID, types.StagePlan, "done")
	b.Publish(jobID, types.StageImplement, 50, "rewriting")

	events := drain(ch)
	require.Len(t, events, 3)
	assert.InDelta(t, 60.0, events[2].OverallPercentage, 1e-9)
}

func TestSlowSubscriberIsPrunedNotBlocking(t *testing.T) {
	b := NewBroadcaster(nil)
	jobID := uuid.New()
	ch, cancel := b.Subscribe(jobID)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		// Overflow the subscriber buffer without anyone reading.
		for i := 0; i < subscriberBuffer+5; i++ {
			b.Publish(jobID, types.StageEvaluate, float64(i), "tick")
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}

	// The pruned subscriber's channel is closed after draining the buffer.
	events := drain(ch)
	assert.LessOrEqual(t, len(events), subscriberBuffer)
	_, open := <-ch
	assert.False(t, open)
}

func TestSubscribersAreIndependentAcrossJobs(t *testing.T) {
	b := NewBroadcaster(nil)
	jobA, jobB := uuid.New(), uuid.New()

	chA, cancelA := b.Subscribe(jobA)
	defer cancelA()
	chB, cancelB := b.Subscribe(jobB)
	defer cancelB()

	b.Publish(jobA, types.StageEvaluate, 10, "job A only")

	assert.Len(t, drain(chA), 1)
	assert.Empty(t, drain(chB))
}

func TestCloseStopsDeliveryAndReleasesSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	jobID := uuid.New()
	ch, cancel := b.Subscribe(jobID)
	defer cancel()

	b.Publish(jobID, types.StageVerify, 100, "done")
	b.Close(jobID, 10*time.Millisecond)

	// Published after close: dropped.
	b.Publish(jobID, types.StageVerify, 100, "late event")

	require.Eventually(t, func() bool {
		events := drain(ch)
		if len(events) > 1 {
			return false
		}
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "subscriber channel should close after the grace period")
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	jobID := uuid.New()
	b.Publish(jobID, types.StageEvaluate, 10, "start")
	b.Close(jobID, time.Millisecond)

	ch, cancel := b.Subscribe(jobID)
	defer cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestSubscribeAfterTeardownReturnsClosedChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	jobID := uuid.New()
	b.Publish(jobID, types.StageEvaluate, 10, "start")
	b.Close(jobID, time.Millisecond)

	// Wait for the grace timer to delete the registry entry, then
	// subscribe late. The channel must close, not hang.
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, ok := b.jobs[jobID]
		return !ok
	}, time.Second, 5*time.Millisecond)

	ch, cancel := b.Subscribe(jobID)
	defer cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	default:
		t.Fatal("late subscriber channel stayed open")
	}

	// Publishing for a torn-down job must not resurrect its entry.
	b.Publish(jobID, types.StageVerify, 100, "late event")
	b.mu.Lock()
	_, resurrected := b.jobs[jobID]
	b.mu.Unlock()
	assert.False(t, resurrected)
}
