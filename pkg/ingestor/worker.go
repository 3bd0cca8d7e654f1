package ingestor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
)

// Outcome is the result of ingesting one payload of a DocumentsSource.
type Outcome struct {
	Name   string
	Result *models.ProcessingResult
	Err    error
}

// job carries a payload already opened by the feeder; workers never touch the source.
type job struct {
	seq     int
	name    string
	reader  io.Reader
	openErr error
}

type Worker struct {
	id  int
	ch  chan job
	ing *Ingestor

	mu       *sync.Mutex
	outcomes map[int]Outcome
}

func (w *Worker) do(ctx context.Context, j job) {
	log.Debugf("[W%d]: processing %s", w.id, j.name)
	o := Outcome{Name: j.name}
	o.Result, o.Err = w.process(ctx, j)
	if o.Err != nil {
		log.Errorf("[W%d]: %s cannot be processed: %v", w.id, j.name, o.Err)
	}

	w.mu.Lock()
	w.outcomes[j.seq] = o
	w.mu.Unlock()
	log.Debugf("[W%d]: done processing %s", w.id, j.name)
}

func (w *Worker) process(ctx context.Context, j job) (*models.ProcessingResult, error) {
	if j.openErr != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrXmlRead, j.openErr)
	}
	if c, ok := j.reader.(io.Closer); ok {
		defer c.Close()
	}
	b, err := io.ReadAll(j.reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrXmlRead, err)
	}
	return w.ing.Process(ctx, b)
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range w.ch {
		w.do(ctx, j)
	}
}

// IngestAll processes every payload of source with the given number of workers.
// Outcomes follow the source order. Once ctx is cancelled no new payload is
// started; payloads already handed to a worker complete.
func (i *Ingestor) IngestAll(ctx context.Context, source DocumentsSource, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = 1
	}
	ch := make(chan job)
	wg := sync.WaitGroup{}
	mu := sync.Mutex{}
	outcomes := map[int]Outcome{}

	for n := 0; n < workers; n++ {
		wg.Add(1)
		w := &Worker{id: n, ch: ch, ing: i, mu: &mu, outcomes: outcomes}
		go w.Start(context.WithoutCancel(ctx), &wg)
	}

	seq := 0
feed:
	for source.Scan() {
		if ctx.Err() != nil {
			break
		}
		j := job{seq: seq, name: source.Name()}
		j.reader, j.openErr = source.Current()
		select {
		case <-ctx.Done():
			closeReader(j.reader)
			break feed
		case ch <- j:
			seq++
		}
	}
	close(ch)
	wg.Wait()

	keys := make([]int, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]Outcome, 0, len(keys))
	for _, k := range keys {
		out = append(out, outcomes[k])
	}

	if err := source.Err(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}
