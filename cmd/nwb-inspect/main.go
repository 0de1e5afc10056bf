package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/storage"
	"github.com/INLOpen/nexusnwb/storage/container"
)

func main() {
	verify := flag.Bool("verify", false, "Verify the checksum of every chunk")
	showAttrs := flag.Bool("attrs", true, "Print attributes")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-verify] [-attrs=false] file.nwb\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err := inspect(os.Stdout, flag.Arg(0), *verify, *showAttrs, logger); err != nil {
		fmt.Fprintf(os.Stderr, "nwb-inspect: %v\n", err)
		os.Exit(1)
	}
}

func inspect(w io.Writer, path string, verify, showAttrs bool, logger *slog.Logger) error {
	r, err := container.Open(path, container.ReaderOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	fmt.Fprintf(w, "%s: %s, format v%d, %s compression, created %s\n",
		r.Location(), humanize.IBytes(uint64(r.Size())), h.Version, h.CompressorType,
		time.Unix(0, h.CreatedAt).UTC().Format(time.RFC3339))

	for _, n := range r.Nodes() {
		name := n.Path
		if name == "" {
			name = "/"
		}
		depth := strings.Count(n.Path, "/")
		if n.Path != "" {
			depth++
		}
		indent := strings.Repeat("  ", depth)
		if n.Kind == storage.KindDataset {
			fmt.Fprintf(w, "%s%s  [%s] %s rows, %d chunks\n", indent, name, describeSpec(n.Spec), humanize.Comma(int64(n.Rows)), len(n.Chunks))
		} else {
			fmt.Fprintf(w, "%s%s/\n", indent, name)
		}
		if !showAttrs {
			continue
		}
		for _, a := range n.Attributes {
			fmt.Fprintf(w, "%s  @%s = %s\n", indent, a.Name, formatValue(a.Value))
		}
	}

	if !verify {
		return nil
	}
	start := time.Now()
	report, err := r.Verify(context.Background())
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	fmt.Fprintf(w, "verified %d datasets, %s chunks, %s rows in %s\n",
		report.Datasets, humanize.Comma(int64(report.Chunks)), humanize.Comma(int64(report.Rows)),
		time.Since(start).Round(time.Millisecond))
	return nil
}

func describeSpec(spec storage.DatasetSpec) string {
	parts := make([]string, len(spec.Fields))
	for i, f := range spec.Fields {
		switch {
		case f.VarLen():
			parts[i] = fmt.Sprintf("%s:%s[*]", f.Name, f.Type)
		case f.Length == 1:
			parts[i] = fmt.Sprintf("%s:%s", f.Name, f.Type)
		default:
			parts[i] = fmt.Sprintf("%s:%s[%d]", f.Name, f.Type, f.Length)
		}
	}
	return strings.Join(parts, " ")
}

// formatValue renders an attribute value, shortening long arrays.
func formatValue(v *metadata.Value) string {
	if v.Type() == metadata.CHAR {
		s, err := v.GetString()
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return fmt.Sprintf("%q", s)
	}
	var elems []string
	switch v.Type() {
	case metadata.INT8:
		elems = format(metadata.Array[int8](v))
	case metadata.UINT8:
		if v.Length() > 16 {
			return fmt.Sprintf("<%s of binary data>", humanize.IBytes(uint64(v.DataSize())))
		}
		elems = format(metadata.Array[uint8](v))
	case metadata.INT16:
		elems = format(metadata.Array[int16](v))
	case metadata.UINT16:
		elems = format(metadata.Array[uint16](v))
	case metadata.INT32:
		elems = format(metadata.Array[int32](v))
	case metadata.UINT32:
		elems = format(metadata.Array[uint32](v))
	case metadata.INT64:
		elems = format(metadata.Array[int64](v))
	case metadata.UINT64:
		elems = format(metadata.Array[uint64](v))
	case metadata.FLOAT:
		elems = format(metadata.Array[float32](v))
	case metadata.DOUBLE:
		elems = format(metadata.Array[float64](v))
	}
	if len(elems) == 1 {
		return elems[0]
	}
	const maxShown = 8
	if len(elems) > maxShown {
		elems = append(elems[:maxShown], fmt.Sprintf("... (%d total)", v.Length()))
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func format[T metadata.Element](xs []T, err error) []string {
	if err != nil {
		return []string{fmt.Sprintf("<%v>", err)}
	}
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = fmt.Sprint(x)
	}
	return out
}
