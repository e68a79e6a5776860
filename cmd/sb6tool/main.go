// sb6tool is a CLI utility for inspecting KTX textures and SBM meshes.
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/Faultbox/sb6go/pkg/formats"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "ktx":
		err = cmdKTX(os.Stdout, args)
	case "sbm":
		err = cmdSBM(os.Stdout, args)
	case "ktx-swap":
		err = cmdKTXSwap(os.Stdout, args)
	case "ktx-export":
		err = cmdKTXExport(os.Stdout, args)
	case "ktx-import":
		err = cmdKTXImport(os.Stdout, args)
	case "check":
		err = cmdCheck(os.Stdout, args)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `sb6tool - KTX texture and SBM mesh utility

Usage:
  sb6tool <command> [options]

Commands:
  ktx [-meta] <file.ktx>                    Show texture header and sub-images
  sbm [-chunks] <file.sbm>                  Show mesh attributes and sub-objects
  ktx-swap [-order o] <in.ktx> <out.ktx>    Rewrite a texture in another byte order
  ktx-export [-level n] <in.ktx> <out>      Save one mip level as .png or .bmp
  ktx-import [-mips] <in> <out.ktx>         Build an RGBA8 texture from .png or .bmp
  check [-q] <path>...                      Decode every .ktx/.sbm file under paths

Examples:
  sb6tool ktx media/textures/brick.ktx
  sb6tool sbm -chunks media/objects/torus.sbm
  sb6tool ktx-swap -order big brick.ktx brick-be.ktx
  sb6tool ktx-export -level 2 brick.ktx brick-2.png
  sb6tool ktx-import -mips photo.bmp photo.ktx
  sb6tool check media`)
}

// usageError is returned for bad command-line arguments.
type usageError string

func (e usageError) Error() string { return "usage: sb6tool " + string(e) }

func cmdKTX(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("ktx", flag.ContinueOnError)
	meta := fs.Bool("meta", false, "Print key/value metadata")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("ktx [-meta] <file.ktx>")
	}

	img, err := formats.ParseKTXFile(fs.Arg(0))
	if err != nil {
		return err
	}
	h := &img.Header

	order := "little-endian"
	if h.Swapped() {
		order = "big-endian (swapped)"
	}
	kind := fmt.Sprintf("type 0x%04X (%d byte elements), format 0x%04X", h.GLType, h.GLTypeSize, h.GLFormat)
	if h.Compressed() {
		kind = "compressed"
	}

	fmt.Fprintf(w, "File:      %s\n", fs.Arg(0))
	fmt.Fprintf(w, "Target:    %s\n", img.Target())
	fmt.Fprintf(w, "Order:     %s\n", order)
	fmt.Fprintf(w, "Size:      %d x %d x %d\n", h.PixelWidth, h.PixelHeight, h.PixelDepth)
	fmt.Fprintf(w, "Arrays:    %d\n", h.ArrayElements)
	fmt.Fprintf(w, "Faces:     %d\n", h.Faces)
	fmt.Fprintf(w, "Levels:    %d\n", h.MipLevels)
	fmt.Fprintf(w, "Pixels:    %s\n", kind)
	fmt.Fprintf(w, "Internal:  0x%04X (base 0x%04X, %d channels)\n",
		h.GLInternalFormat, h.GLBaseInternalFormat, formats.Channels(h.GLBaseInternalFormat))
	fmt.Fprintf(w, "Metadata:  %d bytes\n", len(img.KeyValueData))
	fmt.Fprintf(w, "Data:      %d bytes\n", len(img.PixelData))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sub-images:")
	for _, s := range img.SubImages {
		fmt.Fprintf(w, "  level %-2d face %d  %4d x %-4d  %d bytes\n", s.Level, s.Face, s.Width, s.Height, len(s.Data))
	}

	if *meta {
		kv, err := img.Metadata()
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w)
		fmt.Fprintln(w, "Metadata:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %q\n", k, strings.TrimRight(string(kv[k]), "\x00"))
		}
	}
	return nil
}

func cmdSBM(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("sbm", flag.ContinueOnError)
	chunks := fs.Bool("chunks", false, "List chunk offsets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("sbm [-chunks] <file.sbm>")
	}

	m, err := formats.ParseSBMFile(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "File:      %s\n", fs.Arg(0))
	fmt.Fprintf(w, "Chunks:    %d\n", m.Header.NumChunks)
	fmt.Fprintf(w, "Vertices:  %d (%d bytes at %d)\n",
		m.VertexData.TotalVertices, m.VertexData.DataSize, m.VertexData.DataOffset)
	if m.IndexData != nil {
		fmt.Fprintf(w, "Indices:   %d x %d bytes at %d\n",
			m.IndexData.IndexCount, m.IndexData.ElementSize(), m.IndexData.IndexDataOffset)
	} else {
		fmt.Fprintln(w, "Indices:   none")
	}
	if lo, hi, ok := m.Bounds(); ok {
		fmt.Fprintf(w, "Bounds:    (%g, %g, %g) - (%g, %g, %g)\n", lo[0], lo[1], lo[2], hi[0], hi[1], hi[2])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Attributes:")
	for i, a := range m.Attributes {
		var flags []string
		if a.Normalized() {
			flags = append(flags, "normalized")
		}
		if a.Integer() {
			flags = append(flags, "integer")
		}
		fmt.Fprintf(w, "  %d %-16s %d x 0x%04X  stride %d  offset %d  %s\n",
			i, a.Name, a.Size, a.Type, a.Stride, a.DataOffset, strings.Join(flags, ","))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sub-objects:")
	for i, s := range m.SubObjects {
		fmt.Fprintf(w, "  %d first %d count %d\n", i, s.First, s.Count)
	}

	if comments := m.CommentStrings(); len(comments) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Comments:")
		for _, c := range comments {
			fmt.Fprintf(w, "  %s\n", c)
		}
	}

	if *chunks {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Chunk table:")
		for i, c := range m.Chunks {
			fmt.Fprintf(w, "  %d %s  offset %d  size %d\n", i, c.Type, c.Offset, c.Size)
		}
	}
	return nil
}

func cmdKTXSwap(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("ktx-swap", flag.ContinueOnError)
	orderName := fs.String("order", "swap", "Output byte order: big, little or swap")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageError("ktx-swap [-order big|little|swap] <in.ktx> <out.ktx>")
	}

	img, err := formats.ParseKTXFile(fs.Arg(0))
	if err != nil {
		return err
	}

	var order binary.AppendByteOrder
	switch *orderName {
	case "big":
		order = binary.BigEndian
	case "little":
		order = binary.LittleEndian
	case "swap":
		order = binary.BigEndian
		if img.Header.Swapped() {
			order = binary.LittleEndian
		}
	default:
		return fmt.Errorf("unknown byte order %q", *orderName)
	}

	data, err := formats.ConvertKTX(img, order)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fs.Arg(1), data, 0644); err != nil {
		return fmt.Errorf("%w: %w", formats.ErrIO, err)
	}

	fmt.Fprintf(w, "Wrote: %s (%s, %d bytes)\n", fs.Arg(1), order, len(data))
	return nil
}

func cmdKTXExport(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("ktx-export", flag.ContinueOnError)
	level := fs.Int("level", 0, "Mip level to export")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageError("ktx-export [-level n] <in.ktx> <out.png|out.bmp>")
	}

	img, err := formats.ParseKTXFile(fs.Arg(0))
	if err != nil {
		return err
	}
	pic, err := img.Image(*level)
	if err != nil {
		return err
	}

	out := fs.Arg(1)
	var encode func(io.Writer, image.Image) error
	switch strings.ToLower(filepath.Ext(out)) {
	case ".png":
		encode = png.Encode
	case ".bmp":
		encode = bmp.Encode
	default:
		return fmt.Errorf("unsupported output extension %q", filepath.Ext(out))
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("%w: %w", formats.ErrIO, err)
	}
	if err := encode(f, pic); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", formats.ErrIO, err)
	}

	b := pic.Bounds()
	fmt.Fprintf(w, "Wrote: %s (level %d, %d x %d)\n", out, *level, b.Dx(), b.Dy())
	return nil
}

func cmdKTXImport(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("ktx-import", flag.ContinueOnError)
	mips := fs.Bool("mips", false, "Generate a full mip chain")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageError("ktx-import [-mips] <in.png|in.bmp> <out.ktx>")
	}

	src, err := decodeImage(fs.Arg(0))
	if err != nil {
		return err
	}

	levels := []image.Image{src}
	if *mips {
		levels = mipChain(src)
	}
	img, err := formats.NewKTX2D(levels)
	if err != nil {
		return err
	}

	f, err := os.Create(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("%w: %w", formats.ErrIO, err)
	}
	if err := formats.WriteKTX(f, img, binary.LittleEndian); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", formats.ErrIO, err)
	}

	fmt.Fprintf(w, "Wrote: %s (%d x %d, %d levels)\n",
		fs.Arg(1), img.Header.PixelWidth, img.Header.PixelHeight, len(img.SubImages))
	return nil
}

// decodeImage reads a PNG or BMP file.
func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", formats.ErrIO, err)
	}
	defer f.Close()

	var pic image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		pic, err = png.Decode(f)
	case ".bmp":
		pic, err = bmp.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported input extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return pic, nil
}

// mipChain downsamples src until both dimensions reach 1.
func mipChain(src image.Image) []image.Image {
	levels := []image.Image{src}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	for w > 1 || h > 1 {
		w, h = max(w>>1, 1), max(h>>1, 1)
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), levels[len(levels)-1], levels[len(levels)-1].Bounds(), draw.Src, nil)
		levels = append(levels, dst)
	}
	return levels
}

// checkResult is the outcome of decoding one file.
type checkResult struct {
	path string
	err  error
}

func cmdCheck(w io.Writer, args []string) error {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	quiet := flags.Bool("q", false, "Only print failures")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return usageError("check [-q] <path>...")
	}

	var results []checkResult
	for _, root := range flags.Args() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".ktx":
				_, err = formats.ParseKTXFile(path)
			case ".sbm":
				_, err = formats.ParseSBMFile(path)
			default:
				return nil
			}
			results = append(results, checkResult{path, err})
			return nil
		})
		if err != nil {
			return err
		}
	}

	counts := make(map[string]int)
	for _, r := range results {
		class := classify(r.err)
		counts[class]++
		if r.err == nil && *quiet {
			continue
		}
		if r.err != nil {
			fmt.Fprintf(w, "%-10s %s: %v\n", class, r.path, r.err)
		} else {
			fmt.Fprintf(w, "%-10s %s\n", class, r.path)
		}
	}

	fmt.Fprintf(w, "\n%d files: %d ok, %d invalid, %d truncated, %d unknown chunk, %d io\n",
		len(results), counts["ok"], counts["invalid"], counts["truncated"], counts["chunk"], counts["io"])

	if failed := len(results) - counts["ok"]; failed > 0 {
		return fmt.Errorf("%d of %d files failed to decode", failed, len(results))
	}
	return nil
}

// classify maps a decode error onto its error category.
func classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, formats.ErrUnknownChunk):
		return "chunk"
	case errors.Is(err, formats.ErrTruncated):
		return "truncated"
	case errors.Is(err, formats.ErrInvalidFormat):
		return "invalid"
	case errors.Is(err, formats.ErrIO):
		return "io"
	default:
		return "error"
	}
}
