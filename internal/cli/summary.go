package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/forPelevin/textwipe/internal/types"
	"github.com/forPelevin/textwipe/internal/usecase"
)

func renderSummary(res usecase.Outcome, mode types.Mode) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Field", "Value"})

	tw.AppendRow(table.Row{"Status", res.Status.String()})
	if res.Message != "" {
		tw.AppendRow(table.Row{"Message", res.Message})
	}
	if res.OutputPath != "" {
		tw.AppendRow(table.Row{"Output", res.OutputPath})
	}
	if res.SilentPath != "" {
		tw.AppendRow(table.Row{"Silent video", res.SilentPath})
	}
	s := res.Stats
	tw.AppendRow(table.Row{"Frames", fmt.Sprintf("%s read, %s written", humanize.Comma(int64(s.FramesRead)), humanize.Comma(int64(s.FramesWritten)))})
	if mode == types.ModeAutoSub {
		covered := 0
		for _, seg := range res.Segments {
			covered += seg.Frames()
		}
		tw.AppendRow(table.Row{"Segments", fmt.Sprintf("%d covering %s frames", len(res.Segments), humanize.Comma(int64(covered)))})
	} else {
		if mode.CacheEligible() {
			tw.AppendRow(table.Row{"Cache", fmt.Sprintf("%s hits, %s misses", humanize.Comma(int64(s.CacheHits)), humanize.Comma(int64(s.CacheMisses)))})
		}
		tw.AppendRow(table.Row{"Masked pixels", humanize.Comma(int64(s.MaskedPixels))})
	}
	if s.RegionFailures > 0 {
		tw.AppendRow(table.Row{"Region failures", s.RegionFailures})
	}
	if s.OutputBytes > 0 {
		tw.AppendRow(table.Row{"Size", humanize.Bytes(uint64(s.OutputBytes))})
	}
	tw.AppendRow(table.Row{"Elapsed", s.Elapsed.Round(time.Millisecond).String()})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
	})
	return tw.Render()
}
