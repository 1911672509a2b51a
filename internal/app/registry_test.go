package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/voicepanel/internal/core"
)

func TestRegistry_CancelCarriesCause(t *testing.T) {
	r := NewRegistry()
	ms := newSession("s1", "p1", 1)
	ctx, cancel := context.WithCancelCause(context.Background())
	if err := r.Bind(ms, cancel); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if panel, ok := r.PanelOf("s1"); !ok || panel != "p1" {
		t.Fatalf("PanelOf=%q,%v", panel, ok)
	}

	if !r.Cancel("s1", ErrSuperseded) {
		t.Fatalf("Cancel reported unknown session")
	}
	if !errors.Is(context.Cause(ctx), ErrSuperseded) {
		t.Fatalf("cause=%v", context.Cause(ctx))
	}
	if r.Cancel("missing", ErrEvicted) {
		t.Fatalf("Cancel of unknown sid should report false")
	}
	if !r.Unbind("s1") || r.Unbind("s1") {
		t.Fatalf("Unbind should succeed exactly once")
	}
}

func TestRegistry_DrainWaitsForUnbind(t *testing.T) {
	r := NewRegistry()
	ms := newSession("s1", "p1", 1)
	ctx, cancel := context.WithCancelCause(context.Background())
	if err := r.Bind(ms, cancel); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	// the session loop unbinds once its context is cancelled
	go func(sid core.SessionID) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		r.Unbind(sid)
	}(ms.ID())

	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	if err := r.Drain(dctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if !errors.Is(context.Cause(ctx), ErrShutdown) {
		t.Fatalf("cause=%v, want ErrShutdown", context.Cause(ctx))
	}
	if err := r.Bind(newSession("s2", "p1", 2), func(error) {}); !errors.Is(err, ErrDraining) {
		t.Fatalf("Bind after drain: err=%v", err)
	}
}

func TestRegistry_DrainTimesOut(t *testing.T) {
	r := NewRegistry()
	_ = r.Bind(newSession("stuck", "p1", 1), func(error) {})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want deadline exceeded", err)
	}
}

func TestSimplePolicy(t *testing.T) {
	ms := newSession("s1", "p1", 1)
	p := SimplePolicy{Takeover: true}
	if p.OnBackPressure(ms, core.ErrBackpressure) != KickMember {
		t.Fatalf("full queue should evict")
	}
	if p.OnBackPressure(ms, core.ErrClosed) != NoAction {
		t.Fatalf("closed connection needs no action")
	}
	if p.OnDuplicate(ms) != Supersede {
		t.Fatalf("takeover policy should supersede")
	}
	if (SimplePolicy{}).OnDuplicate(ms) != AllowDuplicate {
		t.Fatalf("no takeover should allow duplicates")
	}
}
