package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forPelevin/textwipe/internal/config"
	"github.com/forPelevin/textwipe/internal/logging"
	"github.com/forPelevin/textwipe/internal/pipeline"
	"github.com/forPelevin/textwipe/internal/types"
	"github.com/forPelevin/textwipe/internal/usecase"
)

type jobFlags struct {
	regions     []string
	mode        string
	out         string
	timetable   string
	previewAddr string
	keepTemp    bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	f := &jobFlags{}
	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Erase burned-in text from the selected regions of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := types.ParseMode(f.mode)
			if err != nil {
				return err
			}
			if mode == types.ModeAutoSub {
				return errors.New("use 'textwipe autosub' to derive subtitle timings")
			}
			return runJob(cmd, root, f, args[0], mode)
		},
	}
	addCommonFlags(cmd, f)
	cmd.Flags().StringVar(&f.mode, "mode", "telea", "Inpaint mode: telea, ns, tiled, learned or visualize")
	cmd.Flags().StringVar(&f.timetable, "timetable", "", "ASS or YAML file limiting when each labelled region is processed")
	cmd.Flags().BoolVar(&f.keepTemp, "keep-temp", false, "Keep the intermediate silent video")
	return cmd
}

func newAutoSubCommand(root *rootOptions) *cobra.Command {
	f := &jobFlags{}
	cmd := &cobra.Command{
		Use:   "autosub <input>",
		Short: "Detect when burned-in subtitles change and write an ASS timing file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, root, f, args[0], types.ModeAutoSub)
		},
	}
	addCommonFlags(cmd, f)
	return cmd
}

func addCommonFlags(cmd *cobra.Command, f *jobFlags) {
	cmd.Flags().StringArrayVar(&f.regions, "region", nil, "Region x1,x2,y1,y2[:binary|gray][@label] (repeatable)")
	cmd.Flags().StringVar(&f.out, "out", "", "Output path (default: next to the input)")
	cmd.Flags().StringVar(&f.previewAddr, "preview-addr", "", "Serve a live preview on this address, e.g. 127.0.0.1:8090")
}

func runJob(cmd *cobra.Command, root *rootOptions, f *jobFlags, input string, mode types.Mode) error {
	settings, _, _, err := config.Load(root.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if root.logLevel != "" {
		settings.Logging.Level = root.logLevel
	}
	if root.logFormat != "" {
		settings.Logging.Format = root.logFormat
	}
	log, err := logging.NewFromConfig(settings, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	regions, err := parseRegions(f.regions)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(regions) == 0 {
		if regions, err = settings.RegionList(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	out := ""
	if f.out != "" {
		if out, err = filepath.Abs(f.out); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := newProgressReporter(cmd.ErrOrStderr(), log)
	cfg := pipeline.Config{
		Input:       absIn,
		Output:      out,
		Regions:     regions,
		Mode:        mode,
		TimeTable:   f.timetable,
		PreviewAddr: f.previewAddr,
		KeepTemp:    f.keepTemp,
		Settings:    settings,
		Logger:      log,
		OnProgress:  progress.Update,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	res := pipeline.Run(ctx, cfg)
	progress.Finish()
	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(res, mode))

	switch res.Status {
	case usecase.StatusSuccess:
		return nil
	case usecase.StatusWarn:
		return fmt.Errorf("%w: %s", errIncomplete, res.Message)
	}
	return res.Err
}

func parseRegions(specs []string) ([]types.Region, error) {
	out := make([]types.Region, 0, len(specs))
	for _, s := range specs {
		if strings.TrimSpace(s) == "" {
			continue
		}
		r, err := types.ParseRegion(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
