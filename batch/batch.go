// Package batch runs many independent ARC or GSC assemble calls
// concurrently against a single, shared engine Context, exercising the
// concurrency model described for this assembler core: a Context is
// read-only and safe to share across concurrently running Assemblers,
// each of which owns its own writers and fixup state.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Lierrmm/gsc-tool/arc"
	"github.com/Lierrmm/gsc-tool/gsc"
)

// ARCJob is one unit of work for ARCAll: an Assembly to assemble under
// a shared Context, with an optional script name override.
type ARCJob struct {
	Assembly *arc.Assembly
	Name     string
}

// ARCResult is one ARCJob's output, indexed back to its input position.
type ARCResult struct {
	Script []byte
	Devmap []byte
}

// ARCAll assembles every job against ctx concurrently, each on its own
// arc.Assembler, and returns results in input order. It stops launching
// new work and returns the first error once any job fails.
func ARCAll(ctx context.Context, ectx *arc.Context, jobs []ARCJob) ([]ARCResult, error) {
	results := make([]ARCResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := arc.NewAssembler(ectx)
			script, devmap, err := a.Assemble(job.Assembly, job.Name)
			if err != nil {
				return err
			}
			results[i] = ARCResult{Script: append([]byte(nil), script...), Devmap: append([]byte(nil), devmap...)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GSCJob is one unit of work for GSCAll.
type GSCJob struct {
	Assembly *gsc.Assembly
}

// GSCResult is one GSCJob's output.
type GSCResult struct {
	Script []byte
	Stack  []byte
	Devmap []byte
}

// GSCAll assembles every job against ctx concurrently, each on its own
// gsc.Assembler, and returns results in input order.
func GSCAll(ctx context.Context, ectx *gsc.Context, jobs []GSCJob) ([]GSCResult, error) {
	results := make([]GSCResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := gsc.NewAssembler(ectx)
			script, stack, devmap, err := a.Assemble(job.Assembly)
			if err != nil {
				return err
			}
			results[i] = GSCResult{
				Script: append([]byte(nil), script...),
				Stack:  append([]byte(nil), stack...),
				Devmap: append([]byte(nil), devmap...),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
