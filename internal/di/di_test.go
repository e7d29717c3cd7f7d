package di

import (
	"sync"
	"sync/atomic"
	"testing"
)

type greeter struct{ name string }

func TestContainer_RegisterAndGet(t *testing.T) {
	c := NewContainer()
	c.Register("config", "value")

	if got := c.Get("config"); got != "value" {
		t.Errorf("expected value, got %v", got)
	}
}

func TestRegisterToken_LazySingleton(t *testing.T) {
	c := NewContainer()
	token := NewToken[*greeter]("test.greeter")

	var builds atomic.Int32
	RegisterToken(c, token, func(ServiceRegistry) *greeter {
		builds.Add(1)
		return &greeter{name: "lag"}
	})

	if builds.Load() != 0 {
		t.Fatal("factory must not run before first Get")
	}

	var wg sync.WaitGroup
	results := make([]*greeter, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = GetToken(c, token)
		}(i)
	}
	wg.Wait()

	for _, g := range results {
		if g != results[0] {
			t.Fatal("expected a single shared instance")
		}
	}
	if results[0].name != "lag" {
		t.Errorf("unexpected instance: %+v", results[0])
	}
}

func TestRegisterToken_ResolvesDependencies(t *testing.T) {
	c := NewContainer()
	c.Register("name", "miner")
	token := NewToken[*greeter]("test.greeter")
	RegisterToken(c, token, func(sr ServiceRegistry) *greeter {
		return &greeter{name: sr.Get("name").(string)}
	})

	if got := GetToken(c, token).name; got != "miner" {
		t.Errorf("expected miner, got %s", got)
	}
}

func TestContainer_UnknownServicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown service")
		}
	}()
	NewContainer().Get("missing")
}
