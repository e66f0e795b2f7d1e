package server

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chazu/pinky/compiler"
	"github.com/chazu/pinky/pkg/bytecode"
)

func TestRunner_Do(t *testing.T) {
	r := NewRunner(1)
	defer r.Stop()

	prog, err := compiler.Compile("println 6 * 7")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	result, err := r.Do(bg(), func(v *bytecode.VM) any {
		var out bytes.Buffer
		v.Configure(bytecode.WithOutput(&out))
		if err := v.Run(prog); err != nil {
			return err.Error()
		}
		return out.String()
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if result != "42\n" {
		t.Errorf("result = %q, want %q", result, "42\n")
	}
}

func TestRunner_RecoversPanic(t *testing.T) {
	r := NewRunner(1)
	defer r.Stop()

	_, err := r.Do(bg(), func(v *bytecode.VM) any {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected an error from a panicking function")
	}

	// The worker survives the panic.
	result, err := r.Do(bg(), func(v *bytecode.VM) any { return 1 })
	if err != nil || result != 1 {
		t.Errorf("Do after panic = %v, %v; want 1, nil", result, err)
	}
}

func TestRunner_Concurrent(t *testing.T) {
	r := NewRunner(4)
	defer r.Stop()

	prog, err := compiler.Compile("x := 0\nwhile x < 100 do x := x + 1 end")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := r.Do(bg(), func(v *bytecode.VM) any {
				if err := v.Run(prog); err != nil {
					return err
				}
				x, _ := v.Global("x")
				return x
			})
			if err != nil {
				errs <- err
				return
			}
			if result != bytecode.Number(100) {
				errs <- errors.New("unexpected result")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestRunner_CanceledContext(t *testing.T) {
	r := NewRunner(1)
	defer r.Stop()

	ctx, cancel := context.WithCancel(bg())
	cancel()

	if _, err := r.Do(ctx, func(v *bytecode.VM) any { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Do with canceled context = %v, want context.Canceled", err)
	}
}

func TestRunner_Stopped(t *testing.T) {
	r := NewRunner(1)
	r.Stop()

	if _, err := r.Do(bg(), func(v *bytecode.VM) any { return nil }); !errors.Is(err, ErrRunnerStopped) {
		t.Errorf("Do after Stop = %v, want ErrRunnerStopped", err)
	}
}
