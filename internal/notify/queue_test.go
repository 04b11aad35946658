package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueueRunsInOrder(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		q.Push(func() {
			mu.Lock()
			got = append(got, i)
			n := len(got)
			mu.Unlock()
			if n == 100 {
				close(done)
			}
		})
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain")
	}
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestQueueAllowsReentrantPush(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	done := make(chan struct{})
	q.Push(func() {
		q.Push(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested push never ran")
	}
}

func TestQueueCloseFromNotification(t *testing.T) {
	q := NewQueue()
	ran := make(chan struct{})
	q.Push(func() {
		q.Close()
		close(ran)
	})
	<-ran
	called := false
	q.Push(func() { called = true })
	time.Sleep(20 * time.Millisecond)
	assert.False(t, called)
	q.Close()
}
