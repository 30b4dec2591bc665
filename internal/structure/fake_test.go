package structure

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/sluice/internal/cluster"
)

// fakeEnquiry returns fixed reduced values and records the updates it receives.
type fakeEnquiry struct {
	mu      sync.Mutex
	spec    InletSpec
	area    float64
	depth   float64
	stage   float64
	xmom    float64
	ymom    float64
	energy  float64
	text    string
	sets    int
	samples int
	readErr error
}

func (f *fakeEnquiry) read(v *float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *v, f.readErr
}

func (f *fakeEnquiry) GlobalArea(context.Context) (float64, error) { return f.read(&f.area) }

func (f *fakeEnquiry) GlobalAverageDepth(context.Context) (float64, error) {
	return f.read(&f.depth)
}

func (f *fakeEnquiry) GlobalAverageStage(context.Context) (float64, error) {
	return f.read(&f.stage)
}

func (f *fakeEnquiry) GlobalAverageXmom(context.Context) (float64, error) { return f.read(&f.xmom) }

func (f *fakeEnquiry) GlobalAverageYmom(context.Context) (float64, error) { return f.read(&f.ymom) }

func (f *fakeEnquiry) EnquiryTotalEnergy(context.Context) (float64, error) {
	f.mu.Lock()
	f.samples++
	f.mu.Unlock()
	return f.read(&f.energy)
}

func (f *fakeEnquiry) SetDepths(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depth = v
	f.sets++
}

func (f *fakeEnquiry) SetXmoms(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.xmom = v
}

func (f *fakeEnquiry) SetYmoms(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ymom = v
}

func (f *fakeEnquiry) OutwardVector() orb.Point { return f.spec.Outward }

func (f *fakeEnquiry) Statistics(context.Context) (string, error) { return f.text, nil }

func (f *fakeEnquiry) snapshot() (depth, xmom, ymom float64, sets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.depth, f.xmom, f.ymom, f.sets
}

func (f *fakeEnquiry) sampled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples
}

// inletState seeds a fakeEnquiry.
type inletState struct {
	area, depth, stage, xmom, ymom, energy float64
}

// fakeDomain hands out fakeEnquiry values seeded from per-inlet states.
type fakeDomain struct {
	rank      int
	templates [2]inletState
	built     [2]*fakeEnquiry
}

func (d *fakeDomain) NewEnquiry(spec InletSpec) (Enquiry, error) {
	t := &d.templates[spec.Index]
	e := &fakeEnquiry{
		spec:   spec,
		area:   t.area,
		depth:  t.depth,
		stage:  t.stage,
		xmom:   t.xmom,
		ymom:   t.ymom,
		energy: t.energy,
		text:   fmt.Sprintf("rank %d inlet %d\n", d.rank, spec.Index),
	}
	d.built[spec.Index] = e
	return e, nil
}

// countingTransport records every send by destination and kind.
type countingTransport struct {
	cluster.Transport
	mu    sync.Mutex
	sends []string
}

func (c *countingTransport) Send(ctx context.Context, dst int, msg any) error {
	c.mu.Lock()
	c.sends = append(c.sends, fmt.Sprintf("%d:%s", dst, cluster.KindOf(msg)))
	c.mu.Unlock()
	return c.Transport.Send(ctx, dst, msg)
}

func (c *countingTransport) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sends...)
}

// runRanks drives fn once per rank of an in-process group and fails on any error.
func runRanks(t *testing.T, n int, fn func(ctx context.Context, tr *countingTransport) error) []*countingTransport {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	group := cluster.NewLocalGroup(n)
	trs := make([]*countingTransport, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for r := range group {
		trs[r] = &countingTransport{Transport: group[r]}
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			errs[r] = fn(ctx, trs[r])
		}(r)
	}
	wg.Wait()

	for r, err := range errs {
		require.NoError(t, err, "rank %d", r)
	}
	return trs
}

func ptr(v float64) *float64 { return &v }
