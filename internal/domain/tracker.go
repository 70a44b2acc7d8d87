package domain

import (
	"context"
	"time"
)

// StepCancellationRequested only exists on the tracker; orders never carry it as a status.
const StepCancellationRequested = "Cancellation Requested"

// RevealInterval is the delay between two revealed tracker steps.
const RevealInterval = 800 * time.Millisecond

var (
	normalSteps = []string{
		string(OrderStatusPending),
		string(OrderStatusProcessing),
		string(OrderStatusShipped),
		string(OrderStatusOutForDelivery),
		string(OrderStatusDelivered),
	}
	cancellationSteps = []string{
		string(OrderStatusPending),
		string(OrderStatusProcessing),
		StepCancellationRequested,
		string(OrderStatusCancelled),
	}
)

// Tracker is the position of an order on its progress bar.
// Known is false when the order's status is not on the selected step list;
// Current is -1 in that case.
type Tracker struct {
	Steps        []string `json:"steps"`
	Current      int      `json:"current"`
	CurrentLabel string   `json:"current_label"`
	Known        bool     `json:"known"`
	Cancellation bool     `json:"cancellation"`
}

func inCancellationFlow(o *Order) bool {
	return o.Status == OrderStatusCancelled ||
		o.CancellationStatus == CancellationRequested ||
		o.CancellationStatus == CancellationApproved
}

// TrackOrder selects the step list for o and locates its current step.
func TrackOrder(o *Order) Tracker {
	t := Tracker{Current: -1, Cancellation: inCancellationFlow(o)}

	if t.Cancellation {
		t.Steps = append([]string(nil), cancellationSteps...)
	} else {
		t.Steps = append([]string(nil), normalSteps...)
		if o.Status == OrderStatusReturned {
			t.Steps = append(t.Steps, string(OrderStatusReturned))
		}
	}

	t.CurrentLabel = string(o.Status)
	if o.CancellationStatus == CancellationRequested && o.Status != OrderStatusCancelled {
		t.CurrentLabel = StepCancellationRequested
	}

	for i, step := range t.Steps {
		if step == t.CurrentLabel {
			t.Current = i
			t.Known = true
			break
		}
	}
	return t
}

// Reveal emits the indexes 0..Current, one every interval, then closes.
// Nothing is emitted for an unknown position. A non-positive interval
// falls back to RevealInterval.
func (t Tracker) Reveal(ctx context.Context, interval time.Duration) <-chan int {
	if interval <= 0 {
		interval = RevealInterval
	}
	out := make(chan int)
	go func() {
		defer close(out)
		if !t.Known {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; i <= t.Current; i++ {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			select {
			case out <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
