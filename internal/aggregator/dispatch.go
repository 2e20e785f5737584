package aggregator

import (
	"context"
	"hash/fnv"
	"sync"

	"signal_bot/internal/models"
)

type event struct {
	key    models.Key
	candle models.Candle
	window models.Window
}

// dispatcher — пул воркеров, шардированный по символу: события одного
// символа идут в один шард, порядок по open_time сохраняется, разные
// символы обрабатываются параллельно.
type dispatcher struct {
	shards []chan event
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func newDispatcher(workers, queue int) *dispatcher {
	d := &dispatcher{shards: make([]chan event, workers)}
	for i := range d.shards {
		d.shards[i] = make(chan event, queue)
	}
	return d
}

func (d *dispatcher) start(ctx context.Context, run func(context.Context, event)) {
	for _, ch := range d.shards {
		ch := ch
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range ch {
				run(ctx, ev)
			}
		}()
	}
}

// submit блокируется при заполненном шарде: просадка очереди тормозит
// чтение стрима, но порядок событий не ломается. RLock держим на время
// отправки, чтобы stop не закрыл канал под незавершённым send.
func (d *dispatcher) submit(ctx context.Context, ev event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}
	ch := d.shards[shardFor(ev.key.Symbol, len(d.shards))]

	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

// stop закрывает приём и ждёт дренаж очередей не дольше ctx.
func (d *dispatcher) stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shardFor(symbol string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(n))
}
