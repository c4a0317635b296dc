package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/folio/internal/config"
	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/internal/pipeline"
	"github.com/JaimeStill/folio/pkg/formatting"
	"github.com/JaimeStill/folio/pkg/lifecycle"
	"github.com/JaimeStill/folio/pkg/storage"
)

const pollInterval = 150 * time.Millisecond

type convertOptions struct {
	kind   string
	title  string
	output string
	quiet  bool
	inputs []string
}

func newConvertCmd() *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert --kind KIND [flags] INPUT...",
		Short: "Run one conversion job in-process",
		Long: `convert submits one job to an in-process pipeline backed by a temporary
blob store and writes the artifact to --output.

Kinds:
  pdf-to-slides      one PDF (or office document) to a .pptx deck
  images-to-package  one or more images to an .h5p image slider
  slides-to-package  one slide deck (or PDF) to an .h5p course presentation`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.inputs = args

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			progress := cmd.ErrOrStderr()
			if opts.quiet {
				progress = io.Discard
			}

			out, err := convert(ctx, cfg, logger, opts, progress)
			if err != nil {
				return err
			}

			info, err := os.Stat(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", out, formatting.FormatBytes(info.Size(), 1))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "job kind (required)")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "presentation title (default: first input's name)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "artifact path (default: <title><ext> in the working directory)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")
	cmd.MarkFlagRequired("kind")

	return cmd
}

// convert runs one job to completion and returns the absolute path of the
// written artifact.
func convert(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts convertOptions, progress io.Writer) (string, error) {
	kind, err := jobs.ParseKind(opts.kind)
	if err != nil {
		return "", err
	}
	if err := kind.ValidateInputs(opts.inputs); err != nil {
		return "", err
	}

	workspace, err := os.MkdirTemp(cfg.Pipeline.WorkDir, "folio-cli-*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	resolver, lc, err := localBlobs(workspace, logger)
	if err != nil {
		return "", err
	}
	defer lc.Shutdown(5 * time.Second)

	refs := make([]string, len(opts.inputs))
	for i, in := range opts.inputs {
		ref, err := resolver.Register(ctx, storage.NewKey(jobs.UploadPrefix, in), in)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", in, err)
		}
		refs[i] = ref
	}

	title := opts.title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(opts.inputs[0]), filepath.Ext(opts.inputs[0]))
	}

	pcfg := cfg.Pipeline
	pcfg.WorkDir = workspace

	store := jobs.NewMemoryStore()
	runner := pipeline.New(store, resolver, &pcfg, logger)

	job, err := runner.Create(ctx, kind, title, refs)
	if err != nil {
		return "", err
	}

	final, err := watch(ctx, store, job, progress, func() error {
		return runner.Execute(ctx, job.ID)
	})
	if err != nil {
		return "", err
	}
	if final.Phase == jobs.PhaseFailed {
		return "", final.Error
	}

	dest := opts.output
	if dest == "" {
		dest = jobs.ArtifactName(final)
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return "", err
	}

	if _, err := resolver.Fetch(context.WithoutCancel(ctx), final.OutputRef, dest); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return dest, nil
}

func localBlobs(workspace string, logger *slog.Logger) (*storage.Resolver, *lifecycle.Coordinator, error) {
	scfg := &storage.Config{
		Backend: storage.BackendFilesystem,
		Root:    filepath.Join(workspace, "blobs"),
	}
	if err := scfg.Finalize(nil); err != nil {
		return nil, nil, err
	}

	blobs, err := storage.New(scfg, logger)
	if err != nil {
		return nil, nil, err
	}

	lc := lifecycle.New()
	if err := blobs.Start(lc); err != nil {
		return nil, nil, err
	}
	lc.WaitForStartup()

	return storage.NewResolver(blobs), lc, nil
}

// watch runs execute in the background and renders the job's progress
// until it returns. The final job snapshot is returned.
func watch(ctx context.Context, store jobs.Store, job *jobs.Job, w io.Writer, execute func() error) (*jobs.Job, error) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(string(job.Kind)),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)

	done := make(chan error, 1)
	go func() {
		done <- execute()
	}()

	sctx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	render := func() (*jobs.Job, error) {
		snap, err := store.Get(sctx, job.ID)
		if err != nil {
			return nil, err
		}
		if snap.Message != "" {
			bar.Describe(snap.Message)
		}
		bar.Set(snap.Progress)
		return snap, nil
	}

	for {
		select {
		case err := <-done:
			if err != nil {
				return nil, err
			}
			final, err := render()
			if err != nil {
				return nil, err
			}
			if final.Phase == jobs.PhaseSucceeded {
				bar.Finish()
			} else {
				fmt.Fprint(w, "\n")
			}
			return final, nil
		case <-ticker.C:
			if _, err := render(); err != nil && !errors.Is(err, jobs.ErrNotFound) {
				return nil, err
			}
		}
	}
}
