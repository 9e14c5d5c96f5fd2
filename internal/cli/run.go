package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/aretw0/onestep"
	"github.com/aretw0/onestep/internal/presentation/tui"
	"github.com/aretw0/onestep/pkg/config"
	"github.com/aretw0/onestep/pkg/domain"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	RunKey     string
	TaskID     string
	ConfigPath string
	Sets       []string
	Step       string
	Messages   []string
	JSON       bool
}

// RunOutput is what --json prints.
type RunOutput struct {
	RunKey string          `json:"run_key"`
	Result *onestep.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BuildConfig overlays the config file, then --set pairs, then --step.
func BuildConfig(opts RunOptions) (map[string]any, error) {
	fileBag, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	setBag, err := config.ParseSet(opts.Sets)
	if err != nil {
		return nil, err
	}
	bag := config.Overlay(fileBag, setBag)
	if opts.Step != "" {
		bag[config.KeyStep] = opts.Step
	}
	return bag, nil
}

// BuildInput seeds the task id from --task-id, or from an explicit task_id in the
// configuration. The declared default is never used to seed the state.
func BuildInput(opts RunOptions, bag map[string]any) onestep.Input {
	in := onestep.Input{TaskID: opts.TaskID}
	if in.TaskID == "" {
		if s, ok := bag[config.KeyTaskID].(string); ok {
			in.TaskID = s
		}
	}
	for _, m := range opts.Messages {
		in.Messages = append(in.Messages, domain.NewHumanMessage(m))
	}
	return in
}

// Run invokes the engine once and prints the outcome to out.
// The returned error is the invocation error, after it was reported.
func Run(ctx context.Context, eng *onestep.Engine, opts RunOptions, out io.Writer, render tui.Renderer) error {
	bag, err := BuildConfig(opts)
	if err != nil {
		return err
	}

	runKey := opts.RunKey
	if runKey == "" {
		runKey = uuid.NewString()
		if !opts.JSON {
			printSystemMessage(out, "New run '%s'.", runKey)
		}
	}

	res, invokeErr := eng.Invoke(ctx, runKey, BuildInput(opts, bag), bag)

	if opts.JSON {
		output := RunOutput{RunKey: runKey, Result: res}
		if invokeErr != nil {
			output.Error = invokeErr.Error()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(output); err != nil {
			return err
		}
		return invokeErr
	}

	if res != nil {
		if res.Resumed {
			printSystemMessage(out, "Resuming run '%s'.", runKey)
		}
		if render == nil {
			render = tui.Plain
		}
		rendered, err := render(tui.Transcript(runKey, res.State, res.Step))
		if err != nil {
			return fmt.Errorf("failed to render result: %w", err)
		}
		fmt.Fprint(out, rendered)
	}
	if invokeErr != nil {
		printSystemMessage(out, "Step failed, checkpoint left unchanged.")
	}
	return invokeErr
}
