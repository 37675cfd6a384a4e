package netmon

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMonitor_ReconnectEdgeTriggersDrain(t *testing.T) {
	src := NewManualSource(false)
	var drains atomic.Int32

	m := NewMonitor(MonitorOptions{
		Source:     src,
		Drain:      func() { drains.Add(1) },
		HasPending: func() bool { return true },
		Interval:   time.Hour, // el timer no juega en este test
	})
	m.Start()
	defer m.Stop()

	src.SetOnline(true)
	waitFor(t, func() bool { return drains.Load() == 1 })

	// seguir online no dispara de nuevo: el flanco es offline->online
	src.SetOnline(true)
	time.Sleep(30 * time.Millisecond)
	if drains.Load() != 1 {
		t.Fatalf("repeated online must not retrigger, got %d", drains.Load())
	}

	// nuevo ciclo offline->online: nuevo flanco
	src.SetOnline(false)
	src.SetOnline(true)
	waitFor(t, func() bool { return drains.Load() == 2 })
}

func TestMonitor_GoingOfflineDoesNotDrain(t *testing.T) {
	src := NewManualSource(true)
	var drains atomic.Int32

	m := NewMonitor(MonitorOptions{
		Source:     src,
		Drain:      func() { drains.Add(1) },
		HasPending: func() bool { return true },
		Interval:   time.Hour,
	})
	m.Start()
	defer m.Stop()

	src.SetOnline(false)
	time.Sleep(30 * time.Millisecond)
	if drains.Load() != 0 {
		t.Fatalf("offline edge must not drain, got %d", drains.Load())
	}
	if m.Online() {
		t.Fatal("monitor should observe offline")
	}
}

func TestMonitor_PeriodicTimerDrainsWhilePending(t *testing.T) {
	src := NewManualSource(true)
	var drains atomic.Int32
	pending := atomic.Bool{}
	pending.Store(true)

	m := NewMonitor(MonitorOptions{
		Source:     src,
		Drain:      func() { drains.Add(1) },
		HasPending: pending.Load,
		Interval:   20 * time.Millisecond,
	})
	m.Start()
	defer m.Stop()

	waitFor(t, func() bool { return drains.Load() >= 2 })

	// sin pendientes el timer no dispara
	pending.Store(false)
	base := drains.Load()
	time.Sleep(80 * time.Millisecond)
	if drains.Load() > base+1 { // a lo sumo un tick que ya estaba en vuelo
		t.Fatalf("timer kept draining without pending work: %d -> %d", base, drains.Load())
	}
}

func TestMonitor_TimerSkipsWhileOffline(t *testing.T) {
	src := NewManualSource(false)
	var drains atomic.Int32

	m := NewMonitor(MonitorOptions{
		Source:     src,
		Drain:      func() { drains.Add(1) },
		HasPending: func() bool { return true },
		Interval:   15 * time.Millisecond,
	})
	m.Start()
	defer m.Stop()

	time.Sleep(80 * time.Millisecond)
	if drains.Load() != 0 {
		t.Fatalf("offline timer must not drain, got %d", drains.Load())
	}
}

func TestMonitor_OnChangeNotifiesBothEdges(t *testing.T) {
	src := NewManualSource(false)
	var changes []bool
	done := make(chan struct{}, 8)

	m := NewMonitor(MonitorOptions{
		Source:     src,
		Drain:      func() {},
		HasPending: func() bool { return false },
		Interval:   time.Hour,
		OnChange: func(online bool) {
			changes = append(changes, online)
			done <- struct{}{}
		},
	})
	m.Start()
	defer m.Stop()

	src.SetOnline(true)
	<-done
	src.SetOnline(false)
	<-done

	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Fatalf("expected [true false], got %v", changes)
	}
}

func TestManualSource_NotifiesOnlyOnChange(t *testing.T) {
	src := NewManualSource(false)
	var notified int
	cancel := src.Subscribe(func(bool) { notified++ })
	defer cancel()

	src.SetOnline(false) // sin cambio
	src.SetOnline(true)
	src.SetOnline(true) // sin cambio
	if notified != 1 {
		t.Fatalf("expected 1 notification, got %d", notified)
	}

	cancel()
	src.SetOnline(false)
	if notified != 1 {
		t.Fatalf("unsubscribed listener must not fire, got %d", notified)
	}
}

func TestBackoff_Grows(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 0)
	if d := b.ForAttempt(0); d != time.Second {
		t.Fatalf("attempt 0 = %v", d)
	}
	if d := b.ForAttempt(2); d != 4*time.Second {
		t.Fatalf("attempt 2 = %v", d)
	}
	// saturación en MaxDelay
	if d := b.ForAttempt(20); d != time.Minute {
		t.Fatalf("attempt 20 = %v", d)
	}
}
