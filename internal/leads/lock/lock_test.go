package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exerciseExclusion(t *testing.T, l Locker) {
	t.Helper()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "lead:1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected mutual exclusion, saw %d holders", maxInside)
	}
}

func TestKeyedMutexExcludes(t *testing.T) {
	km := NewKeyedMutex()
	exerciseExclusion(t, km)
	if km.Len() != 0 {
		t.Fatalf("expected no live keys, got %d", km.Len())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA, err := km.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := km.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("key b must not wait on key a: %v", err)
	}
	unlockB()
}

func TestKeyedMutexHonorsContext(t *testing.T) {
	km := NewKeyedMutex()
	unlock, _ := km.Lock(context.Background(), "k")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := km.Lock(ctx, "k"); err == nil {
		t.Fatalf("expected context error while key is held")
	}
}

func newMiniredisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLockerWithClient(client, time.Second), mr
}

func TestRedisLockerExcludes(t *testing.T) {
	l, _ := newMiniredisLocker(t)
	exerciseExclusion(t, l)
}

func TestRedisLockerReleasesOnlyOwnLock(t *testing.T) {
	l, mr := newMiniredisLocker(t)
	var lost string
	l.OnLost(func(key string) { lost = key })

	unlock, err := l.Lock(context.Background(), "lead:2")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	mr.FastForward(2 * time.Second)
	if err := mr.Set(keyPrefix+"lead:2", "someone-else"); err != nil {
		t.Fatalf("set: %v", err)
	}

	unlock()
	if lost != "lead:2" {
		t.Fatalf("expected lost callback for lead:2, got %q", lost)
	}
	if got, _ := mr.Get(keyPrefix + "lead:2"); got != "someone-else" {
		t.Fatalf("unlock deleted a lock it no longer owned")
	}
}
