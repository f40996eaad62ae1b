package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/okian/upready/internal/adapters/mq/queue"
	"github.com/okian/upready/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func ingest(id string) model.Ingest {
	return model.Ingest{ID: id, Kind: model.IngestSample, Sample: &model.BiometricSample{ID: id, Kind: model.KindHRV, Value: 40}}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with capacity two", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		So(q.Capacity(), ShouldEqual, 2)
		So(q.Len(), ShouldEqual, 0)

		Convey("When two records are enqueued", func() {
			So(q.Enqueue(ctx, ingest("a")), ShouldBeNil)
			So(q.Enqueue(ctx, ingest("b")), ShouldBeNil)

			Convey("Then a third is rejected with backpressure", func() {
				So(errors.Is(q.Enqueue(ctx, ingest("c")), queue.ErrFull), ShouldBeTrue)
				So(q.Len(), ShouldEqual, 2)
			})

			Convey("Then they dequeue in order", func() {
				ch := q.Dequeue()
				So((<-ch).ID, ShouldEqual, "a")
				So((<-ch).ID, ShouldEqual, "b")
				So(q.Len(), ShouldEqual, 0)
			})

			Convey("Then closing keeps queued records readable", func() {
				So(q.Close(), ShouldBeNil)
				So(q.Close(), ShouldBeNil)
				So(q.IsClosed(), ShouldBeTrue)
				var ids []string
				for in := range q.Dequeue() {
					ids = append(ids, in.ID)
				}
				So(ids, ShouldResemble, []string{"a", "b"})
				So(errors.Is(q.Enqueue(ctx, ingest("d")), queue.ErrClosed), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then enqueue fails with the context error", func() {
				So(errors.Is(q.Enqueue(cctx, ingest("a")), context.Canceled), ShouldBeTrue)
			})
		})
	})

	Convey("Given concurrent producers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		var wg sync.WaitGroup
		var mu sync.Mutex
		accepted := 0
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if q.Enqueue(ctx, ingest("x")) == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly the capacity is accepted", func() {
			So(accepted, ShouldEqual, 100)
			So(q.Len(), ShouldEqual, 100)
		})
	})
}
