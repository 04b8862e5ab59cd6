package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/harness"
	"github.com/roach88/receipts/internal/policy"
	"github.com/roach88/receipts/internal/store"
)

// loadNarrative reads a narrative file verbatim, markdown or plain text.
func loadNarrative(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "read narrative", err)
	}
	return string(data), nil
}

// loadRecords reads a YAML records fixture file. The format is the
// same record list scenario files embed.
func loadRecords(path string) ([]fact.StructuredRecord, error) {
	records, err := harness.LoadRecords(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load records", err)
	}
	return records, nil
}

// loadPolicy resolves the verification policy: built-in defaults, or a
// CUE file or directory when --policy is given.
func loadPolicy(path string) (policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	pol, errs := policy.Load(path)
	if len(errs) > 0 {
		return policy.Policy{}, WrapExitError(ExitCommandError, fmt.Sprintf("load policy %s", path), errs[0])
	}
	return pol, nil
}

// openStore opens the audit pack store named by the global flags,
// creating it if it does not exist.
func openStore(opts *RootOptions) (*store.Store, error) {
	index := opts.IndexPath
	if index == "" {
		index = filepath.Join(opts.StoreRoot, "index.db")
	}
	st, err := store.Open(opts.StoreRoot, index)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}
