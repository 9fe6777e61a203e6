package connection

import (
	"reflect"
	"testing"
)

func TestStatusReporter_DropsOlderSnapshots(t *testing.T) {
	r := newStatusReporter()

	var got []State
	r.subscribe(func(s Status) { got = append(got, s.State) })

	r.publish(1, Status{State: StateConnecting})
	r.publish(3, Status{State: StateConnected})
	r.publish(2, Status{State: StateReconnecting})

	want := []State{StateConnecting, StateConnected}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("delivered = %v, want %v", got, want)
	}
}

func TestStatusReporter_Unsubscribe(t *testing.T) {
	r := newStatusReporter()

	calls := 0
	unsub := r.subscribe(func(Status) { calls++ })
	r.publish(1, Status{})
	unsub()
	r.publish(2, Status{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStatusReporter_ReentrantPublishKeepsOrder(t *testing.T) {
	r := newStatusReporter()

	var got []State
	r.subscribe(func(s Status) {
		got = append(got, s.State)
		if s.State == StateConnected {
			r.publish(3, Status{State: StateDisconnected})
		}
	})
	var second []State
	r.subscribe(func(s Status) { second = append(second, s.State) })

	r.publish(1, Status{State: StateConnecting})
	r.publish(2, Status{State: StateConnected})

	want := []State{StateConnecting, StateConnected, StateDisconnected}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("first subscriber = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(second, want) {
		t.Errorf("second subscriber = %v, want %v", second, want)
	}
}

func TestStatusReporter_Reset(t *testing.T) {
	r := newStatusReporter()

	calls := 0
	r.subscribe(func(Status) { calls++ })
	r.reset()
	r.publish(1, Status{})

	if calls != 0 {
		t.Errorf("calls after reset = %d, want 0", calls)
	}
}
