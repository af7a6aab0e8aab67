package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcasterPublishSubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("t1")
	defer cancel()

	b.Publish(Event{TaskID: "t1", Phase: "fetch", Progress: 30})
	b.Publish(Event{TaskID: "other", Phase: "fetch", Progress: 10})

	select {
	case ev := <-ch:
		assert.Equal(t, "t1", ev.TaskID)
		assert.Equal(t, 30, ev.Progress)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("沒有收到事件")
	}

	// 其他任務的事件不會進來
	select {
	case ev := <-ch:
		t.Fatalf("不應收到事件: %+v", ev)
	default:
	}
}

func TestBroadcasterMultipleSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch1, cancel1 := b.Subscribe("t1")
	ch2, cancel2 := b.Subscribe("t1")
	defer cancel1()
	defer cancel2()

	b.Publish(Event{TaskID: "t1", Phase: "extract", Progress: 70})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, 70, ev.Progress)
		case <-time.After(time.Second):
			t.Fatal("訂閱端沒有收到事件")
		}
	}
}

func TestBroadcasterDropsWhenSubscriberLags(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("t1")
	defer cancel()

	// 超過緩衝大小的事件會被丟棄而不是阻塞發布端
	for i := 0; i < 50; i++ {
		b.Publish(Event{TaskID: "t1", Phase: "fetch", Progress: i})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 16, received)
}

func TestBroadcasterCancelStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("t1")
	cancel()

	// 取消後通道關閉，發布不會進到已關閉的通道
	b.Publish(Event{TaskID: "t1", Phase: "fetch", Progress: 30})

	ev, open := <-ch
	assert.False(t, open, "通道應已關閉，收到: %+v", ev)

	// 重複取消不會 panic
	cancel()
}

func TestNopSink(t *testing.T) {
	assert.NotPanics(t, func() {
		NopSink{}.Publish(Event{TaskID: "t1"})
	})
}
