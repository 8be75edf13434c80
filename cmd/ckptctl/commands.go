package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/checkpoint"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <lineage>",
		Short: "List a lineage's checkpoints, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cps, err := a.store.List(cmd.Context(), checkpoint.Address{LineageID: args[0]})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cps)
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <lineage> [checkpoint-id]",
		Short: "Print one checkpoint, or the lineage head when no id is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := checkpoint.Address{LineageID: args[0]}
			if len(args) == 2 {
				addr.CheckpointID = args[1]
			}
			cp, err := a.store.Get(cmd.Context(), addr)
			if err != nil {
				return err
			}
			if cp == nil {
				return fmt.Errorf("%w: lineage %q checkpoint %q", ckpt.ErrCheckpointNotFound, addr.LineageID, addr.CheckpointID)
			}
			return writeJSON(cmd.OutOrStdout(), cp)
		},
	}
}

type clearResult struct {
	LineageID string `json:"lineage_id"`
	Cleared   bool   `json:"cleared"`
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <lineage>",
		Short: "Remove every checkpoint of a lineage but keep it registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cleared, err := a.store.Clear(cmd.Context(), checkpoint.Address{LineageID: args[0]})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), clearResult{LineageID: args[0], Cleared: cleared})
		},
	}
}

type releaseResult struct {
	LineageID string   `json:"lineage_id"`
	Removed   []string `json:"removed"`
}

func newReleaseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "release <lineage>",
		Short: "Delete a finished lineage together with its lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := a.store.Release(cmd.Context(), checkpoint.Address{LineageID: args[0]})
			if err != nil {
				return err
			}
			out := releaseResult{LineageID: tag.LineageID, Removed: make([]string, 0, len(tag.Removed))}
			for _, cp := range tag.Removed {
				out.Removed = append(out.Removed, cp.ID)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
