package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/echolock/echolock/internal/common"
)

const currentFileName = "current"

// readSelectedID returns the id written by the select command, so
// other commands can omit --id for the most recently selected switch.
func readSelectedID(dataDir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dataDir, currentFileName))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", common.NewError(common.KindIo, "reading selected switch id", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func writeSelectedID(dataDir, id string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return common.NewError(common.KindIo, "creating data directory", err)
	}
	path := filepath.Join(dataDir, currentFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id), 0o600); err != nil {
		return common.NewError(common.KindIo, "writing selected switch id", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return common.NewError(common.KindIo, "renaming selected switch id into place", err)
	}
	return nil
}

// resolveID returns explicitID if non-empty, otherwise the currently
// selected switch id, failing with ParameterError if neither is set.
func resolveID(dataDir, explicitID string) (string, error) {
	if explicitID != "" {
		return explicitID, nil
	}
	id, err := readSelectedID(dataDir)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", common.NewError(common.KindParameterError, "no switch id given and none selected; pass --id or run select", nil)
	}
	return id, nil
}
