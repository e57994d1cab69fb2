package memory

import (
	"context"
	"sync"
	"time"

	"github.com/steveyiyo/toole/pkg/types"
)

// Analysis is one finished run together with its rendered artifacts.
type Analysis struct {
	ID         string
	CreatedAt  time.Time
	Language   types.Language
	Goal       string
	Result     *types.InstructionResult
	StepLines  []string
	Narration  string
	Image      []byte
	ImageType  string
	Audio      []byte
	AudioType  string
	DurationMs int64
	Width      int
	Height     int
}

// AnalysisRepo keeps analyses for a bounded time; nothing outlives the
// process.
type AnalysisRepo struct {
	m         sync.Map
	retention time.Duration
	now       func() time.Time
}

func NewAnalysisRepo(retention time.Duration) *AnalysisRepo {
	return &AnalysisRepo{retention: retention, now: time.Now}
}

func (r *AnalysisRepo) Save(a *Analysis) {
	r.m.Store(a.ID, a)
}

func (r *AnalysisRepo) Get(id string) (*Analysis, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}
	a := v.(*Analysis)
	if r.expired(a) {
		r.m.Delete(id)
		return nil, false
	}
	return a, true
}

// Sweep drops expired analyses and returns how many were removed.
func (r *AnalysisRepo) Sweep() int {
	n := 0
	r.m.Range(func(k, v any) bool {
		if r.expired(v.(*Analysis)) {
			r.m.Delete(k)
			n++
		}
		return true
	})
	return n
}

// Run sweeps every interval until ctx is done.
func (r *AnalysisRepo) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

func (r *AnalysisRepo) expired(a *Analysis) bool {
	return r.retention > 0 && r.now().Sub(a.CreatedAt) > r.retention
}
