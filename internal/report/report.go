// Package report renders pipeline results for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/tinyimg/tinyimg/internal/pipeline"
)

var header = []string{"File", "Raw", "Compressed", "Ratio", "Status"}

// Table 以对齐的列输出每个文件的处理记录。
func Table(w io.Writer, records []pipeline.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, rec := range records {
		fmt.Fprintln(tw, strings.Join(rec.Row(), "\t"))
	}
	return tw.Flush()
}

// Summary 输出文件总数、各状态数量与总耗时，例如：
//
//	files: 3  success: 1  skipped: 1  failed: 1  elapsed: 1.23s
func Summary(w io.Writer, result pipeline.Result) error {
	_, err := fmt.Fprintf(w, "files: %d  success: %d  skipped: %d  failed: %d  elapsed: %.2fs\n",
		result.Total, result.Succeeded, result.Skipped, result.Failed, result.Elapsed.Seconds())
	return err
}

// Empty 在没有候选文件时输出提示。
func Empty(w io.Writer) error {
	_, err := fmt.Fprintln(w, "no images need compressing")
	return err
}
