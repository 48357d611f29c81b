// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/asch/bcomp/internal/bcomp"
	"github.com/asch/bcomp/internal/bcomp/port"
	"github.com/asch/bcomp/internal/bcomp/stats"
)

func benchCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "bench <file>",
		Short: "Write the file through the device block by block, verify it and print stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			dev, err := openDevice()
			if err != nil {
				return err
			}
			defer dev.Close()

			start := time.Now()
			if err := bench(dev, data, concurrency); err != nil {
				return err
			}

			printStats(cmd.OutOrStdout(), dev.Stats().Snapshot(), len(data), time.Since(start))

			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 16, "Number of requests in flight")

	return cmd
}

// Writes data to the beginning of the device and reads it back. The last
// block is padded with zeroes.
func bench(dev *bcomp.Device, data []byte, concurrency int) error {
	if concurrency < 1 {
		return fmt.Errorf("concurrency has to be at least 1, got %d", concurrency)
	}

	bs := dev.BlockSize()
	blocks := (len(data) + bs - 1) / bs
	spb := int64(bs / port.SectorSize)

	if int64(blocks)*spb > dev.Capacity() {
		return fmt.Errorf("%s does not fit into %s", humanize.IBytes(uint64(len(data))),
			humanize.IBytes(uint64(dev.Capacity()*port.SectorSize)))
	}

	block := func(i int) []byte {
		b := make([]byte, bs)
		copy(b, data[i*bs:])
		return b
	}

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i := 0; i < blocks; i++ {
		i := i
		g.Go(func() error {
			return dev.WriteBlock(int64(i)*spb, block(i))
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i := 0; i < blocks; i++ {
		i := i
		g.Go(func() error {
			out := make([]byte, bs)
			if err := dev.ReadBlock(int64(i)*spb, out); err != nil {
				return err
			}

			if !bytes.Equal(out, block(i)) {
				return fmt.Errorf("block %d differs after read back", i)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Int("blocks", blocks).Msg("Read back verified")

	return nil
}

func printStats(w io.Writer, s stats.Snapshot, size int, elapsed time.Duration) {
	out := tablewriter.NewWriter(w)
	out.SetHeader([]string{"Counter", "Value"})
	out.SetAutoFormatHeaders(false)
	out.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, f := range s.Fields() {
		out.Append([]string{f.Name, strconv.FormatInt(f.Value, 10)})
	}

	// All blocks have the same size, plain ones are stored whole.
	var stored int64
	if s.AllReqs > 0 {
		stored = s.CompressedDataInBytes + s.UncompressedReqs*s.DataInBytes/s.AllReqs
	}

	out.SetFooter([]string{
		humanize.IBytes(uint64(size)) + " in " + elapsed.Round(time.Millisecond).String(),
		"stored " + humanize.IBytes(uint64(stored)),
	})

	out.Render()
}
