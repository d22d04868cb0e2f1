package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidquest/clip"
	"vidquest/core"
	"vidquest/storage"
)

// Query states, in the order a healthy query moves through them.
// Synthesizing and composing run concurrently once results are known.
type State string

const (
	StateReceived     State = "received"
	StateEmbedding    State = "embedding"
	StateRetrieving   State = "retrieving"
	StateSynthesizing State = "synthesizing"
	StateComposing    State = "composing"
	StateAssembled    State = "assembled"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Engine sequences Retriever, Clip Synthesizer and Answer Composer for one
// query and assembles the result. Each external call carries its own
// timeout; every failure except invalid options and query embedding
// degrades to a partial, explicitly flagged result.
type Engine struct {
	emb   storage.Embedder
	retr  *Retriever
	synth *clip.Synthesizer
	comp  *Composer

	embedTimeout time.Duration
}

func NewEngine(emb storage.Embedder, retr *Retriever, synth *clip.Synthesizer, comp *Composer, embedTimeout time.Duration) *Engine {
	return &Engine{emb: emb, retr: retr, synth: synth, comp: comp, embedTimeout: embedTimeout}
}

// query carries the per-request progress used for logging and timing.
type query struct {
	id      string
	state   State
	started time.Time
}

func (q *query) advance(s State) { q.state = s }

func (q *query) fail(err error) error {
	log.Printf("query %s: failed while %s: %v", q.id, q.state, err)
	q.state = StateFailed
	return err
}

// Answer runs the full query pipeline. It returns an error only for invalid
// options or a failed query embedding; everything else comes back as a
// QueryResult whose Degraded list names any missing parts.
func (e *Engine) Answer(ctx context.Context, text string, opts core.QueryOptions) (*core.QueryResult, error) {
	q := &query{id: uuid.NewString(), state: StateReceived, started: time.Now()}

	if err := opts.Validate(); err != nil {
		return nil, q.fail(err)
	}

	result := &core.QueryResult{
		QueryID: q.id,
		Query:   text,
		Status:  core.StatusComplete,
	}

	q.advance(StateEmbedding)
	vector, err := e.embedQuery(ctx, text)
	if err != nil {
		// No query vector means nothing downstream can run.
		return nil, q.fail(fmt.Errorf("embed query: %w", err))
	}

	q.advance(StateRetrieving)
	results, err := e.retr.Search(ctx, vector, opts.TopK, opts.MinScore)
	if err != nil {
		var invalid *core.InvalidQueryError
		if errors.As(err, &invalid) {
			return nil, q.fail(err)
		}
		if errors.Is(err, core.ErrRetrievalTimeout) {
			log.Printf("query %s: retrieval timed out, continuing without results", q.id)
		} else {
			log.Printf("query %s: retrieval failed: %v", q.id, err)
		}
		results = nil
		result.Degraded = append(result.Degraded, "retrieval")
	}
	result.Results = results

	if len(results) == 0 {
		// Policy response, not an error: no grounding means no
		// generation call and no clip.
		answer, _ := e.comp.Compose(ctx, text, nil)
		result.Answer = answer
		e.finish(q, result)
		return result, nil
	}

	var wg sync.WaitGroup
	var clipArtifact *core.ClipArtifact
	var clipErr error
	var answer string
	var answerErr error

	if opts.IncludeClip {
		q.advance(StateSynthesizing)
		wg.Add(1)
		go func() {
			defer wg.Done()
			top := results[0]
			a, err := e.synth.Synthesize(ctx, top.VideoID, top.Start, top.End)
			if err != nil {
				clipErr = err
				return
			}
			clipArtifact = &a
		}()
	}

	q.advance(StateComposing)
	wg.Add(1)
	go func() {
		defer wg.Done()
		answer, answerErr = e.comp.Compose(ctx, text, results)
	}()

	wg.Wait()
	q.advance(StateAssembled)

	if opts.IncludeClip {
		if clipErr != nil {
			log.Printf("query %s: clip synthesis failed: %v", q.id, clipErr)
			result.Degraded = append(result.Degraded, "clip")
		} else {
			result.Clip = clipArtifact
		}
	}
	if answerErr != nil {
		log.Printf("query %s: answer composition failed: %v", q.id, answerErr)
		result.Degraded = append(result.Degraded, "answer")
	} else {
		result.Answer = answer
	}

	e.finish(q, result)
	return result, nil
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.embedTimeout)
		defer cancel()
	}
	return e.emb.Embed(ctx, text)
}

func (e *Engine) finish(q *query, result *core.QueryResult) {
	if len(result.Degraded) > 0 {
		result.Status = core.StatusDegraded
	}
	result.ElapsedMS = time.Since(q.started).Milliseconds()
	q.advance(StateDone)
	log.Printf("query %s: %s in %dms (%d results)", q.id, result.Status, result.ElapsedMS, len(result.Results))
}
