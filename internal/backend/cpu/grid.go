package cpu

import (
	"context"

	"github.com/born-ml/kernels/internal/program"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Submission is an in-flight program dispatch. The output may only be read after Wait
// returns nil.
type Submission struct {
	done chan struct{}
	err  error
}

// Wait blocks until every workgroup has finished or ctx is done.
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Grid executes programs on the host, one goroutine per workgroup, at most limit at a time.
type Grid struct {
	limit int
}

// NewGrid returns a grid running at most limit workgroups concurrently. limit <= 0 means
// no limit.
func NewGrid(limit int) *Grid {
	return &Grid{limit: limit}
}

// Dispatch launches every workgroup of p over inputs and output and returns immediately.
// Workgroups share no state; a cancelled ctx stops scheduling new workgroups but lets
// running ones finish.
func (g *Grid) Dispatch(ctx context.Context, p *program.Program, inputs []program.Tensor, output program.Tensor) *Submission {
	sub := &Submission{done: make(chan struct{})}
	if len(inputs) != len(p.Inputs) {
		sub.err = errors.Errorf("cpu: program %s expects %d inputs, got %d", p.Name, len(p.Inputs), len(inputs))
		close(sub.done)
		return sub
	}
	klog.V(2).Infof("cpu: dispatch %s", p)

	go func() {
		defer close(sub.done)
		eg, egCtx := errgroup.WithContext(ctx)
		if g.limit > 0 {
			eg.SetLimit(g.limit)
		}
	schedule:
		for z := 0; z < p.Dispatch[2]; z++ {
			for y := 0; y < p.Dispatch[1]; y++ {
				for x := 0; x < p.Dispatch[0]; x++ {
					if egCtx.Err() != nil {
						break schedule
					}
					wg := &program.Workgroup{
						ID:     [3]int{x, y, z},
						Size:   p.Workgroup,
						Grid:   p.Dispatch,
						Inputs: inputs,
						Output: output,
					}
					eg.Go(func() error {
						return runWorkgroup(p, wg)
					})
				}
			}
		}
		if err := eg.Wait(); err != nil {
			sub.err = err
			return
		}
		sub.err = ctx.Err()
	}()
	return sub
}

// Run dispatches p and waits for it.
func (g *Grid) Run(ctx context.Context, p *program.Program, inputs []program.Tensor, output program.Tensor) error {
	return g.Dispatch(ctx, p, inputs, output).Wait(ctx)
}

func runWorkgroup(p *program.Program, wg *program.Workgroup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("cpu: program %s workgroup %v: %v", p.Name, wg.ID, r)
		}
	}()
	p.Kernel.Run(wg)
	return nil
}
