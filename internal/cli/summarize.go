package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/stratus/internal/dirsummary"
)

func newSummarizeCmd() *cobra.Command {
	var (
		root   string
		hidden bool
	)

	cmd := &cobra.Command{
		Use:   "summarize [path]",
		Short: "Summarize a directory",
		Long: `Walk a directory below the sandbox root and report file counts, sizes,
extensions and the largest files. Paths outside --root are rejected.`,
		Example: `  stratus summarize internal
  stratus summarize . --hidden -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			sum, err := dirsummary.Summarize(cmd.Context(), dirsummary.Options{Root: root, Path: path, IncludeHidden: hidden})
			if err != nil {
				return err
			}

			if structured() {
				return encode(sum)
			}

			bold := color.New(color.Bold)
			bold.Println("Directory:")
			printField("  Path", sum.Path)
			printField("  Files", strconv.Itoa(sum.TotalFiles))
			printField("  Directories", strconv.Itoa(sum.DirectoryCount))
			printField("  Total Size", formatBytes(sum.TotalSize))
			printField("  Children", formatStringSlice(sum.Directories))

			fmt.Println()
			bold.Println("File Types:")
			rows := make([][]string, 0, len(sum.FileTypes))
			for _, ext := range sortedStrings(sum.FileTypes) {
				rows = append(rows, []string{"  " + ext, strconv.Itoa(sum.FileTypes[ext])})
			}
			if err := writeTable(stdout, []string{"  EXT", "COUNT"}, rows); err != nil {
				return err
			}

			fmt.Println()
			bold.Println("Largest Files:")
			rows = rows[:0]
			for _, f := range sum.LargestFiles {
				rows = append(rows, []string{"  " + f.Path, formatBytes(f.Size)})
			}
			return writeTable(stdout, []string{"  PATH", "SIZE"}, rows)
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Sandbox root")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Include dotfiles and dot-directories")

	return cmd
}

func newPackCmd() *cobra.Command {
	var (
		root   string
		hidden bool
		style  string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "pack [path]",
		Short: "Pack a directory into one LLM-friendly document",
		Long: `Write the directory tree followed by every file's contents as a single
xml, markdown or plain document. Binary and oversized files are listed
but not inlined.`,
		Example: `  stratus pack internal --style markdown -f context.md
  stratus pack . > packed.xml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			st, err := dirsummary.ParseStyle(style)
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			res, err := dirsummary.Pack(cmd.Context(), dirsummary.Options{Root: root, Path: path, IncludeHidden: hidden}, w, st)
			if err != nil {
				return err
			}
			if out != "" {
				color.Green("Packed %d files (%d chars) into %s", res.TotalFiles, res.TotalChars, out)
				for _, s := range res.Skipped {
					color.HiBlack("  not inlined: %s", s)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Sandbox root")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Include dotfiles and dot-directories")
	cmd.Flags().StringVar(&style, "style", "xml", "Output style: xml|markdown|plain")
	cmd.Flags().StringVarP(&out, "file", "f", "", "Write to a file instead of stdout")

	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
