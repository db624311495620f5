package distributor

import (
	"testing"

	"github.com/matryer/is"

	"github.com/madmazoku/bulkmixer/pkg/metrics"
	"github.com/madmazoku/bulkmixer/pkg/queue"
	"github.com/madmazoku/bulkmixer/pkg/record"
)

func TestDistributor_BroadcastsToAllSubscribers(t *testing.T) {
	is := is.New(t)

	d := New(0, metrics.NoopRegistry{})
	sub1 := queue.New[record.Bulk](0)
	sub2 := queue.New[record.Bulk](0)
	d.Subscribe(sub1)
	d.Subscribe(sub2)
	d.Run(1)

	bulk := record.Bulk{Commands: []record.Command{{Timestamp: 1, Payload: []byte("a")}}}
	is.NoErr(d.Put(bulk))
	is.NoErr(d.Join())

	got1, ok1 := sub1.Get()
	is.True(ok1)
	is.Equal(len(got1.Commands), 1)

	got2, ok2 := sub2.Get()
	is.True(ok2)
	is.Equal(len(got2.Commands), 1)

	_, ok1 = sub1.Get()
	is.True(!ok1)
	_, ok2 = sub2.Get()
	is.True(!ok2)
}

func TestDistributor_DropsEmptyBulk(t *testing.T) {
	is := is.New(t)

	d := New(0, metrics.NoopRegistry{})
	sub := queue.New[record.Bulk](0)
	d.Subscribe(sub)
	d.Run(1)

	is.NoErr(d.Put(record.Bulk{}))
	is.NoErr(d.Join())

	_, ok := sub.Get()
	is.True(!ok)
}

func TestDistributor_SubscribeAfterRunPanics(t *testing.T) {
	is := is.New(t)

	d := New(0, metrics.NoopRegistry{})
	d.Run(1)
	defer d.Join()

	defer func() {
		is.True(recover() != nil)
	}()
	d.Subscribe(queue.New[record.Bulk](0))
}
