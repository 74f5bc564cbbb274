package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"

	"immimate/internal/clb"
	"immimate/internal/clb/client"
	"immimate/internal/draftsync"
	"immimate/internal/draftsync/local"
)

var stdout io.Writer = os.Stdout

func loadCommand(cfg *rootConfig) *ffcli.Command {
	return &ffcli.Command{
		Name:       "load",
		ShortUsage: "draftctl load",
		ShortHelp:  "Reconcile the local and server drafts and print the result",
		Exec: func(ctx context.Context, _ []string) error {
			s, snap, err := cfg.load(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			return printSnapshot(snap)
		},
	}
}

func setCommand(cfg *rootConfig) *ffcli.Command {
	return &ffcli.Command{
		Name:       "set",
		ShortUsage: "draftctl set field=value [field=value...]",
		ShortHelp:  "Change fields and save the draft",
		LongHelp:   "Values are parsed as JSON when possible, otherwise kept as strings.",
		Exec: func(ctx context.Context, args []string) error {
			fields, err := parseAssignments(args)
			if err != nil {
				return err
			}
			s, _, err := cfg.load(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			err = s.manager.Update(func(p draftsync.Payload) draftsync.Payload {
				for k, v := range fields {
					p[k] = v
				}
				return p
			})
			if err != nil {
				return err
			}
			if err := s.manager.Save(ctx, true); err != nil {
				return err
			}
			return printSnapshot(s.manager.Snapshot())
		},
	}
}

func saveCommand(cfg *rootConfig) *ffcli.Command {
	return &ffcli.Command{
		Name:       "save",
		ShortUsage: "draftctl save",
		ShortHelp:  "Save the reconciled draft unless it is unchanged",
		Exec: func(ctx context.Context, _ []string) error {
			s, _, err := cfg.load(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.manager.Save(ctx, true); err != nil {
				return err
			}
			return printSnapshot(s.manager.Snapshot())
		},
	}
}

func discardCommand(cfg *rootConfig) *ffcli.Command {
	return &ffcli.Command{
		Name:       "discard",
		ShortUsage: "draftctl discard",
		ShortHelp:  "Delete the draft locally and on the server",
		Exec: func(ctx context.Context, _ []string) error {
			s, _, err := cfg.load(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.manager.Discard(ctx); err != nil {
				return err
			}
			return printSnapshot(s.manager.Snapshot())
		},
	}
}

func showCommand(cfg *rootConfig) *ffcli.Command {
	return &ffcli.Command{
		Name:       "show",
		ShortUsage: "draftctl show",
		ShortHelp:  "List the raw entries of the local database",
		Exec: func(ctx context.Context, _ []string) error {
			store, err := local.NewSQLiteStore(cfg.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			keys, err := store.Keys(ctx)
			if err != nil {
				return err
			}
			entries := make(map[string]json.RawMessage, len(keys))
			for _, key := range keys {
				value, ok, err := store.Get(ctx, key)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if !json.Valid([]byte(value)) {
					value, _ = marshalString(value)
				}
				entries[key] = json.RawMessage(value)
			}
			return writeJSON(entries)
		},
	}
}

func convertCommand(cfg *rootConfig) *ffcli.Command {
	fs := flag.NewFlagSet("draftctl convert", flag.ExitOnError)
	offline := fs.Bool("offline", false, "use the embedded table only")
	return &ffcli.Command{
		Name:       "convert",
		ShortUsage: "draftctl convert [-offline] <test> <skill> <score>",
		ShortHelp:  "Convert a language test score to its CLB level",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 3 {
				return errors.New("convert needs <test> <skill> <score>")
			}
			test, ok := clb.ParseTestType(args[0])
			if !ok {
				return fmt.Errorf("unsupported test type %q", args[0])
			}
			skill, ok := clb.ParseSkill(args[1])
			if !ok {
				return fmt.Errorf("unsupported skill %q", args[1])
			}
			baseURL := cfg.server
			if *offline {
				baseURL = ""
			}
			c, err := client.New(baseURL, cfg.logger())
			if err != nil {
				return err
			}
			level, ok := c.Convert(ctx, test, skill, clb.Scalar(args[2]))
			out := map[string]any{
				"testType": test,
				"skill":    skill,
				"score":    args[2],
				"found":    ok,
				"range":    c.RangeDescription(ctx, test),
			}
			if ok {
				out["clbLevel"] = level
			}
			return writeJSON(out)
		},
	}
}

// parseAssignments reads field=value pairs. Values are JSON when they parse
// as JSON and strings otherwise.
func parseAssignments(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, errors.New("nothing to set")
	}
	out := make(map[string]any, len(args))
	for _, arg := range args {
		field, raw, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		if strings.HasPrefix(field, "_") {
			return nil, fmt.Errorf("field %q is reserved", field)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[field] = v
	}
	return out, nil
}

type snapshotView struct {
	FormID            string            `json:"formId"`
	Source            draftsync.Source  `json:"source"`
	LastSavedAt       *time.Time        `json:"lastSavedAt,omitempty"`
	HasUnsavedChanges bool              `json:"hasUnsavedChanges"`
	Status            draftsync.Status  `json:"status,omitempty"`
	Error             string            `json:"error,omitempty"`
	Degraded          string            `json:"degraded,omitempty"`
	BreakerOpen       bool              `json:"breakerOpen"`
	Payload           draftsync.Payload `json:"payload"`
}

func printSnapshot(s draftsync.Snapshot) error {
	v := snapshotView{
		FormID:            s.FormID,
		Source:            s.Source,
		HasUnsavedChanges: s.HasUnsavedChanges,
		Status:            s.Status,
		BreakerOpen:       s.BreakerOpen,
		Payload:           s.Payload,
	}
	if !s.LastSavedAt.IsZero() {
		v.LastSavedAt = &s.LastSavedAt
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	if s.Degraded != nil {
		v.Degraded = s.Degraded.Error()
	}
	return writeJSON(v)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func marshalString(s string) (string, error) {
	b, err := json.Marshal(s)
	return string(b), err
}
