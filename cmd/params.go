// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/gatepro/pkg/backup"
	"github.com/Thermoquad/gatepro/pkg/driver"
	"github.com/spf13/cobra"
)

var paramsTimeout int

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Read, change, back up and restore controller parameters",
	Long: `Work with the controller parameter vector.

Parameters are addressed by their configured name (see [[params]] in the
configuration file) or by their index in the vector. Every change is a
read-modify-write of the whole vector followed by a confirming read.`,
}

var paramsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the parameter vector",
	Args:  cobra.NoArgs,
	RunE:  runParamsGet,
}

var paramsSetCmd = &cobra.Command{
	Use:   "set <name|index> <value>",
	Short: "Change one parameter",
	Args:  cobra.ExactArgs(2),
	RunE:  runParamsSet,
}

var paramsBackupCmd = &cobra.Command{
	Use:   "backup <file>",
	Short: "Save the parameter vector to a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runParamsBackup,
}

var paramsRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Write a snapshot file back to the controller",
	Args:  cobra.ExactArgs(1),
	RunE:  runParamsRestore,
}

func init() {
	rootCmd.AddCommand(paramsCmd)
	paramsCmd.AddCommand(paramsGetCmd, paramsSetCmd, paramsBackupCmd, paramsRestoreCmd)
	paramsCmd.PersistentFlags().IntVar(&paramsTimeout, "timeout", 15, "Timeout in seconds")
}

// withSession runs a session in the background while fn works on the driver
func withSession(fn func(ctx context.Context, d *driver.Driver) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(paramsTimeout)*time.Second)
	defer cancel()

	sess, err := openSession(ctx, false, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	if err := fn(ctx, sess.driver); err != nil {
		return err
	}
	cancel()
	return <-runErr
}

// waitFor polls cond until it holds or ctx ends
func waitFor(ctx context.Context, what string, cond func() bool) error {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s", what)
		case <-t.C:
		}
	}
	return nil
}

func waitParams(ctx context.Context, d *driver.Driver) (driver.Params, error) {
	err := waitFor(ctx, "parameters", func() bool { return len(d.Params()) > 0 })
	return d.Params(), err
}

// waitDeviceInfo returns the device info, or "" with a warning when it never
// arrived. Device info is queued right after the parameter read.
func waitDeviceInfo(ctx context.Context, d *driver.Driver) string {
	if err := waitFor(ctx, "device info", func() bool { return d.DeviceInfo() != "" }); err != nil {
		logger.Warn().Err(err).Msg("snapshot will have no device info")
		return ""
	}
	return d.DeviceInfo()
}

// waitSettled waits until every queued parameter write has been confirmed by a read
func waitSettled(ctx context.Context, d *driver.Driver, want func(driver.Params) bool) error {
	return waitFor(ctx, "parameter write", func() bool {
		return d.PendingTasks() == 0 && len(d.PendingTx()) == 0 && want(d.Params())
	})
}

func runParamsGet(cmd *cobra.Command, args []string) error {
	return withSession(func(ctx context.Context, d *driver.Driver) error {
		params, err := waitParams(ctx, d)
		if err != nil {
			return err
		}
		printParams(params, d.Bindings())
		return nil
	})
}

func runParamsSet(cmd *cobra.Command, args []string) error {
	bindings := cfg.Bindings()
	binding, err := resolveParam(bindings, args[0])
	if err != nil {
		return err
	}
	value, err := parseValue(binding.Kind, args[1])
	if err != nil {
		return err
	}

	return withSession(func(ctx context.Context, d *driver.Driver) error {
		params, err := waitParams(ctx, d)
		if err != nil {
			return err
		}
		if _, ok := params.Get(binding.Index); !ok {
			return fmt.Errorf("%w: %d (vector has %d values)", driver.ErrParamIndex, binding.Index, len(params))
		}
		if !d.RequestSetParam(binding.Index, value) {
			fmt.Printf("%s already %d\n", binding.Name, value)
			return nil
		}
		err = waitSettled(ctx, d, func(p driver.Params) bool {
			v, _ := p.Get(binding.Index)
			return v == value
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s set to %d\n", binding.Name, value)
		return nil
	})
}

func runParamsBackup(cmd *cobra.Command, args []string) error {
	return withSession(func(ctx context.Context, d *driver.Driver) error {
		params, err := waitParams(ctx, d)
		if err != nil {
			return err
		}
		snap := backup.NewSnapshot(time.Now(), waitDeviceInfo(ctx, d), params, d.Bindings())
		if err := backup.Save(appFs, args[0], snap); err != nil {
			return err
		}
		fmt.Printf("Saved %d parameters to %s\n", len(params), args[0])
		return nil
	})
}

func runParamsRestore(cmd *cobra.Command, args []string) error {
	snap, err := backup.Load(appFs, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Snapshot taken %s", snap.Taken.Local().Format(time.DateTime))
	if snap.DeviceInfo != "" {
		fmt.Printf(" from %s", snap.DeviceInfo)
	}
	fmt.Println()

	return withSession(func(ctx context.Context, d *driver.Driver) error {
		if _, err := waitParams(ctx, d); err != nil {
			return err
		}
		if err := d.RestoreParams(snap.Params); err != nil {
			return err
		}
		err := waitSettled(ctx, d, func(p driver.Params) bool {
			return slices.Equal([]int(p), snap.Params)
		})
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d parameters\n", len(snap.Params))
		return nil
	})
}

// resolveParam finds a binding by name, or builds a numeric one from an index
func resolveParam(bindings []driver.ParamBinding, ref string) (driver.ParamBinding, error) {
	if b, ok := driver.FindBinding(bindings, ref); ok {
		return b, nil
	}
	idx, err := strconv.Atoi(ref)
	if err != nil || idx < 0 {
		names := make([]string, len(bindings))
		for i, b := range bindings {
			names[i] = b.Name
		}
		return driver.ParamBinding{}, fmt.Errorf("unknown parameter %q (names: %s)", ref, strings.Join(names, ", "))
	}
	for _, b := range bindings {
		if b.Index == idx {
			return b, nil
		}
	}
	return driver.ParamBinding{Name: strconv.Itoa(idx), Index: idx, Kind: driver.ParamNumber}, nil
}

// parseValue accepts integers, and on/off for switches
func parseValue(kind driver.ParamKind, s string) (int, error) {
	if kind == driver.ParamSwitch {
		switch strings.ToLower(s) {
		case "on", "true":
			return 1, nil
		case "off", "false":
			return 0, nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q for %s parameter", s, kind)
	}
	return v, nil
}

func printParams(params driver.Params, bindings []driver.ParamBinding) {
	named := make(map[int]driver.ParamBinding, len(bindings))
	for _, b := range bindings {
		named[b.Index] = b
	}
	for i, v := range params {
		if b, ok := named[i]; ok {
			fmt.Printf("%3d  %-20s %d\n", i, b.Name, v)
		} else {
			fmt.Printf("%3d  %-20s %d\n", i, "", v)
		}
	}
}
