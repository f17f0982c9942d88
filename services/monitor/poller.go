package monitor

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"

	"rsmu-go/x/util"
)

// Kind names what a poll targets.
type Kind uint8

const (
	KindDPLL Kind = iota + 1
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindDPLL:
		return "dpll"
	case KindRef:
		return "ref"
	}
	return "unknown"
}

type PollReq struct {
	Kind  Kind
	Index int
	Every time.Duration
}

type pollKey struct {
	k   Kind
	idx int
}

type pollItem struct {
	key    pollKey
	due    int64
	every  time.Duration
	jitter time.Duration
	index  int
}

type pollHeap []*pollItem

func (h pollHeap) Len() int           { return len(h) }
func (h pollHeap) Less(i, j int) bool { return h[i].due < h[j].due }
func (h pollHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *pollHeap) Push(x any)        { it := x.(*pollItem); it.index = len(*h); *h = append(*h, it) }
func (h *pollHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	it.index = -1
	*h = old[:n-1]
	return it
}
func (h pollHeap) Top() *pollItem {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// Poller emits PollReqs on out as schedules come due. A full out channel
// drops the request; the item is re-armed regardless.
type Poller struct {
	mu    sync.Mutex
	wake  chan struct{}
	items map[pollKey]*pollItem
	h     pollHeap
	rand  *rand.Rand
	out   chan<- PollReq
}

func NewPoller(out chan<- PollReq) *Poller {
	return &Poller{
		wake:  make(chan struct{}, 1),
		items: make(map[pollKey]*pollItem),
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		out:   out,
	}
}

// Upsert adds or updates a schedule. The first fire is after interval plus
// a random jitter in [0..jitter], as is every re-arm.
func (p *Poller) Upsert(k Kind, idx int, interval, jitter time.Duration) {
	if interval <= 0 {
		return
	}
	if jitter < 0 {
		jitter = 0
	}
	key := pollKey{k: k, idx: idx}

	p.mu.Lock()
	due := time.Now().Add(p.jittered(interval, jitter)).UnixNano()
	if it := p.items[key]; it == nil {
		it = &pollItem{key: key, due: due, every: interval, jitter: jitter, index: -1}
		p.items[key] = it
		heap.Push(&p.h, it)
	} else {
		it.every, it.jitter, it.due = interval, jitter, due
		heap.Fix(&p.h, it.index)
	}
	p.mu.Unlock()
	p.wakeup()
}

func (p *Poller) Stop(k Kind, idx int) {
	key := pollKey{k: k, idx: idx}
	p.mu.Lock()
	if it := p.items[key]; it != nil {
		heap.Remove(&p.h, it.index)
		delete(p.items, key)
	}
	p.mu.Unlock()
	p.wakeup()
}

func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := p.nextWait()
		if wait < 0 {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}
		if wait == 0 {
			var fire *pollItem

			p.mu.Lock()
			top := p.h.Top()
			if top != nil && top.due <= time.Now().UnixNano() {
				fire = top
				fire.due = time.Now().Add(p.jittered(fire.every, fire.jitter)).UnixNano()
				heap.Fix(&p.h, fire.index)
			}
			p.mu.Unlock()

			if fire != nil {
				select {
				case p.out <- PollReq{Kind: fire.key.k, Index: fire.key.idx, Every: fire.every}:
				default:
				}
			}
			continue
		}

		util.ResetTimer(timer, time.Duration(wait))
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-timer.C:
		}
	}
}

func (p *Poller) nextWait() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	top := p.h.Top()
	if top == nil {
		return -1
	}
	now := time.Now().UnixNano()
	if top.due <= now {
		return 0
	}
	return top.due - now
}

func (p *Poller) wakeup() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) jittered(interval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return interval
	}
	return interval + time.Duration(p.rand.Int63n(int64(jitter)+1))
}
