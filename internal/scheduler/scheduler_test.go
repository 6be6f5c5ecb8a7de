package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"constellation/internal/ctype"
	"constellation/internal/dag"
	"constellation/internal/ir"
	"constellation/internal/options"
	"constellation/internal/parser"
	"constellation/internal/registry"
	"constellation/internal/semtype"
	"constellation/internal/typecheck"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func compile(t *testing.T, reg *registry.InMemory, src string) *dag.DagSpec {
	t.Helper()
	astFile, perrs := parser.Parse(src)
	require.Empty(t, perrs)
	typed, terrs := typecheck.Analyze(astFile, reg)
	require.Empty(t, terrs)
	prog, ierrs := ir.Generate(typed, reg)
	require.Empty(t, ierrs)
	spec, derrs := dag.Compile(prog)
	require.Empty(t, derrs)
	return spec
}

func newScheduler(spec *dag.DagSpec, impls map[string]ModuleImpl) *Scheduler {
	rt := options.NewRuntime(nil, 2)
	return New(spec, rt, impls, 4, 2*time.Second)
}

func TestSchedulerLinearPipelineCompletes(t *testing.T) {
	reg := registry.NewInMemory()
	reg.Register("shout", registry.Entry{
		Params:     []registry.Param{{Name: "text", Type: semtype.String}},
		Returns:    semtype.String,
		ModuleName: "shout",
	})
	spec := compile(t, reg, `in text: String
loud = shout(text)
out loud`)

	impls := map[string]ModuleImpl{
		"shout": func(ctx context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
			return ctype.NewString(inputs["text"].Str() + "!"), nil
		},
	}
	s := newScheduler(spec, impls)
	exec := s.NewExecution("run-1")
	exec.Supply(map[string]*ctype.Value{"text": ctype.NewString("hi")})

	sig := exec.Run(context.Background())
	require.Equal(t, StatusCompleted, sig.Status)
	assert.Equal(t, "hi!", sig.Outputs["loud"].Str())
}

func TestSchedulerSuspendsOnMissingInputThenResumes(t *testing.T) {
	reg := registry.NewInMemory()
	reg.Register("shout", registry.Entry{
		Params:     []registry.Param{{Name: "text", Type: semtype.String}},
		Returns:    semtype.String,
		ModuleName: "shout",
	})
	spec := compile(t, reg, `in text: String
loud = shout(text)
out loud`)

	impls := map[string]ModuleImpl{
		"shout": func(ctx context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
			return ctype.NewString(inputs["text"].Str() + "!"), nil
		},
	}
	s := newScheduler(spec, impls)
	exec := s.NewExecution("run-2")

	sig := exec.Run(context.Background())
	require.Equal(t, StatusSuspended, sig.Status)
	assert.Contains(t, sig.Missing, "text")

	exec.Supply(map[string]*ctype.Value{"text": ctype.NewString("again")})
	sig = exec.Run(context.Background())
	require.Equal(t, StatusCompleted, sig.Status)
	assert.Equal(t, "again!", sig.Outputs["loud"].Str())
}

func TestSchedulerModuleFailurePropagatesAndSiblingCompletes(t *testing.T) {
	reg := registry.NewInMemory()
	reg.Register("boom", registry.Entry{
		Params:     []registry.Param{{Name: "text", Type: semtype.String}},
		Returns:    semtype.String,
		ModuleName: "boom",
	})
	reg.Register("shout", registry.Entry{
		Params:     []registry.Param{{Name: "text", Type: semtype.String}},
		Returns:    semtype.String,
		ModuleName: "shout",
	})
	spec := compile(t, reg, `in text: String
broken = boom(text)
loud = shout(text)
out broken
out loud`)

	impls := map[string]ModuleImpl{
		"boom": func(ctx context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
			return nil, assertErr
		},
		"shout": func(ctx context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
			return ctype.NewString(inputs["text"].Str() + "!"), nil
		},
	}
	s := newScheduler(spec, impls)
	exec := s.NewExecution("run-3")
	exec.Supply(map[string]*ctype.Value{"text": ctype.NewString("hi")})

	sig := exec.Run(context.Background())
	require.Equal(t, StatusFailed, sig.Status)
	require.Error(t, sig.Err)
	assert.Equal(t, "hi!", sig.Outputs["loud"].Str())
}

func TestSchedulerHigherOrderMapOverList(t *testing.T) {
	reg := registry.NewInMemory()
	spec := compile(t, reg, `in nums: List<Int>
doubled = map(nums, (n) => n * 2)
out doubled`)

	s := newScheduler(spec, map[string]ModuleImpl{})
	exec := s.NewExecution("run-4")
	exec.Supply(map[string]*ctype.Value{
		"nums": ctype.NewList(ctype.Int, []*ctype.Value{ctype.NewInt(1), ctype.NewInt(2), ctype.NewInt(3)}),
	})

	sig := exec.Run(context.Background())
	require.Equal(t, StatusCompleted, sig.Status)

	want := ctype.NewList(ctype.Int, []*ctype.Value{ctype.NewInt(2), ctype.NewInt(4), ctype.NewInt(6)})
	if diff := cmp.Diff(want, sig.Outputs["doubled"], cmp.Comparer(func(a, b *ctype.Value) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("doubled output mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerCancellationStopsRun(t *testing.T) {
	reg := registry.NewInMemory()
	reg.Register("slow", registry.Entry{
		Params:     []registry.Param{{Name: "text", Type: semtype.String}},
		Returns:    semtype.String,
		ModuleName: "slow",
	})
	spec := compile(t, reg, `in text: String
result = slow(text)
out result`)

	release := make(chan struct{})
	impls := map[string]ModuleImpl{
		"slow": func(ctx context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error) {
			select {
			case <-release:
				return ctype.NewString("done"), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	s := newScheduler(spec, impls)
	s.DrainTimeout = 50 * time.Millisecond
	exec := s.NewExecution("run-5")
	exec.Supply(map[string]*ctype.Value{"text": ctype.NewString("hi")})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	sig := exec.Run(ctx)
	require.Equal(t, StatusFailed, sig.Status)
	require.Error(t, sig.Err)
	close(release)
}

var assertErr = &testModuleError{"boom exploded"}

type testModuleError struct{ msg string }

func (e *testModuleError) Error() string { return e.msg }
