package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/forPelevin/textwipe/internal/logging"
)

// progressReporter draws a bar on terminals and falls back to sampled log
// lines elsewhere. Update is called from a single goroutine.
type progressReporter struct {
	w       io.Writer
	bar     *progressbar.ProgressBar
	sampler *logging.ProgressSampler
	log     *slog.Logger
}

func newProgressReporter(w io.Writer, log *slog.Logger) *progressReporter {
	if isTerminal(w) {
		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Processing"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "▐",
				BarEnd:        "▌",
			}),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetRenderBlankState(true),
		)
		return &progressReporter{w: w, bar: bar}
	}
	return &progressReporter{sampler: logging.NewProgressSampler(5), log: log}
}

func (p *progressReporter) Update(percent float64) {
	if p.bar != nil {
		_ = p.bar.Set(int(percent))
		return
	}
	if p.sampler.Sample(percent) {
		p.log.Info("progress", "percent", int(percent))
	}
}

func (p *progressReporter) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		_, _ = io.WriteString(p.w, "\n")
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
