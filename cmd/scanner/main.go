// Command scanner is a minimal sidecar: it reads text one line at a time,
// from stdin or --input, and prints "DETECTED: <url>" for every Shorts link
// it finds. Configure shortwatch with classifier "detected" and, when
// reading stdin, sidecar stdin "inherit".
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/shortwatch/internal/extract"
)

func scan(in io.Reader, w io.Writer, unique bool) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	out := bufio.NewWriter(w)

	seen := make(map[extract.VideoID]struct{})
	for sc.Scan() {
		for _, field := range strings.Fields(sc.Text()) {
			if !extract.IsShorts(field) {
				continue
			}
			id, _ := extract.ExtractID(field)
			if unique {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			fmt.Fprintf(out, "%s %s\n", extract.DetectedPrefix, extract.CanonicalURL(id))
		}
		// Flush per line so the supervisor sees detections immediately.
		if err := out.Flush(); err != nil {
			return err
		}
	}
	return sc.Err()
}

func run(_ context.Context, cmd *cli.Command) error {
	in := io.Reader(os.Stdin)
	if path := cmd.String("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}
	return scan(in, os.Stdout, cmd.Bool("unique"))
}

func main() {
	cmd := &cli.Command{
		Name:   "scanner",
		Usage:  "Print DETECTED lines for YouTube Shorts URLs read from stdin or a file",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Read from this file instead of stdin",
			},
			&cli.BoolFlag{
				Name:  "unique",
				Usage: "Report each video id only once",
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("scanner error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
