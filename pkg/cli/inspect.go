package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bstardust/photo-gps-resolver/internal/config"
	"github.com/bstardust/photo-gps-resolver/internal/fshelper"
	"github.com/bstardust/photo-gps-resolver/internal/pipeline"
	"github.com/bstardust/photo-gps-resolver/internal/progress"
	"github.com/bstardust/photo-gps-resolver/internal/worker"
	"github.com/bstardust/photo-gps-resolver/pkg/common"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

type inspectOptions struct {
	chatID int64
	lang   string
	noSave bool
}

func newInspectCommand(cfg *config.Config) *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect [flags] <photo.jpg | folder | archive.zip>...",
		Short: "Resolve the metadata of photos and print it as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, cfg, opts, args)
		},
	}

	cmd.Flags().Int64Var(&opts.chatID, "user", 0, "Identifier of the requesting user")
	cmd.Flags().StringVar(&opts.lang, "lang", string(models.LangEnglish), "User language (en-US, ru-RU)")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not record the queries in the statistics table; also skips the sharing counts")

	return cmd
}

func runInspect(cmd *cobra.Command, cfg *config.Config, opts *inspectOptions, args []string) error {
	ctx := cmd.Context()

	sources, err := fshelper.ParsePath(args)
	if err != nil {
		return err
	}
	defer fshelper.CloseAll(sources)

	var photos []fshelper.Photo
	for _, src := range sources {
		found, err := fshelper.Photos(src)
		if err != nil {
			return err
		}
		photos = append(photos, found...)
	}
	if len(photos) == 0 {
		return fmt.Errorf("no photos found in %v", args)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	proc := a.processor(!opts.noSave)
	lang := models.ParseLang(opts.lang)
	results := make([]*pipeline.Result, len(photos))

	reporter := progress.New()
	reporter.Start(len(photos))

	var mu sync.Mutex
	pool := worker.NewPool(cfg.Workers.Concurrency)
	for i, photo := range photos {
		i, photo := i, photo
		pool.Submit(func() {
			res := inspectPhoto(ctx, proc, reporter, photo, opts.chatID, lang)
			mu.Lock()
			results[i] = res
			mu.Unlock()
		})
	}
	pool.Wait()
	reporter.Finish()

	return writeJSON(cmd.OutOrStdout(), results)
}

func inspectPhoto(ctx context.Context, proc *pipeline.Processor, reporter *progress.Reporter, photo fshelper.Photo, chatID int64, lang models.Lang) *pipeline.Result {
	f, err := photo.Open()
	if err != nil {
		reporter.Error(photo.Name, err)
		return &pipeline.Result{Name: photo.Name, Error: err.Error()}
	}
	defer f.Close()

	res, err := proc.Process(ctx, pipeline.Request{
		ChatID: chatID,
		Lang:   lang,
		Photo:  f,
		Name:   photo.Name,
	})
	switch {
	case common.IsInputDefect(err):
		reporter.Rejected()
	case err != nil:
		reporter.Error(photo.Name, err)
	case res.Metadata.HasLocation:
		reporter.Located()
	default:
		reporter.NoLocation()
	}

	if err != nil {
		return &pipeline.Result{Name: photo.Name, Error: err.Error()}
	}
	return res
}
