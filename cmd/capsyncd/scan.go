// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ManuGH/capsync/internal/device"
	"github.com/ManuGH/capsync/internal/domain/session/model"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the capture devices currently present, one per physical device",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	scanner := &device.Scanner{
		Root:    cfg.Devices.SysfsRoot,
		DevDir:  cfg.Devices.DevDir,
		Pattern: cfg.Devices.Pattern,
	}
	entries, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	entries = model.Dedupe(entries)

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "no capture devices found")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPATH\tNAME\tDRIVER")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.Path, e.Name, e.Driver)
	}
	return tw.Flush()
}
