package everything

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/MegaGrindStone/go-jsonrpc"
)

const defaultSleepSteps = 1

func (s Server) echo(_ context.Context, args EchoArgs) (EchoResult, error) {
	return EchoResult(args), nil
}

func (s Server) add(_ context.Context, args AddArgs) (AddResult, error) {
	return AddResult{Sum: args.A + args.B}, nil
}

func (s Server) upper(_ context.Context, args UpperArgs) (string, error) {
	return strings.ToUpper(args.Text), nil
}

func (s Server) sleep(ctx context.Context, args SleepArgs) (SleepResult, error) {
	steps := args.Steps
	if steps <= 0 {
		steps = defaultSleepSteps
	}
	stepDuration := time.Duration(args.Duration/float64(steps)) * time.Millisecond

	timer := time.NewTimer(stepDuration)
	defer timer.Stop()

	for i := range steps {
		select {
		case <-ctx.Done():
			return SleepResult{}, fmt.Errorf("sleep interrupted after %d of %d steps: %w", i, steps, ctx.Err())
		case <-timer.C:
		}
		s.logger.Debug("sleep progress", slog.Int("step", i+1), slog.Int("steps", steps))
		timer.Reset(stepDuration)
	}

	return SleepResult{Duration: args.Duration, Steps: steps}, nil
}

func (s Server) fail(_ context.Context, args FailArgs) (any, error) {
	if args.Message == "" {
		return nil, errors.New("failure requested")
	}
	return nil, errors.New(args.Message)
}

func (s Server) diff(_ context.Context, args DiffArgs) (DiffResult, error) {
	name := args.Name
	if name == "" {
		name = "text"
	}
	return DiffResult{
		Diff:    unifiedDiff(args.Original, args.Modified, name),
		Changed: args.Original != args.Modified,
	}, nil
}

func (s Server) env(_ context.Context, args EnvArgs) ([]string, error) {
	vars := make([]string, 0)
	for _, kv := range s.environ() {
		if strings.HasPrefix(kv, args.Prefix) {
			vars = append(vars, kv)
		}
	}
	slices.Sort(vars)
	return vars, nil
}

func (s Server) patch(_ context.Context, args PatchArgs) (json.RawMessage, error) {
	if args.Merge {
		patched, err := jsonpatch.MergePatch(args.Document, args.Patch)
		if err != nil {
			return nil, fmt.Errorf("failed to apply merge patch: %w", err)
		}
		return patched, nil
	}

	patch, err := jsonpatch.DecodePatch(args.Patch)
	if err != nil {
		return nil, jsonrpc.InvalidParamsError("failed to decode patch", err)
	}
	patched, err := patch.Apply(args.Document)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}
	return patched, nil
}

func unifiedDiff(original, modified, name string) string {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(original, modified, true)
	patches := dmp.PatchMake(original, diffs)

	var diff strings.Builder
	fmt.Fprintf(&diff, "--- %s (original)\n", name)
	fmt.Fprintf(&diff, "+++ %s (modified)\n", name)
	diff.WriteString(dmp.PatchToText(patches))

	return diff.String()
}
