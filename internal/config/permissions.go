// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// readableByOthers covers the group-read and other-read bits.
const readableByOthers fs.FileMode = 0o044

// WarnInsecurePermissions logs a warning when the config file at path can be
// read by users other than its owner. API keys and database passwords may sit
// in plain text there. Startup is never blocked.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	if info.Mode().Perm()&readableByOthers != 0 {
		slog.Warn("config file has insecure permissions; credentials may be readable by other users",
			"path", path,
			"mode", info.Mode(),
			"recommended", "0600",
		)
	}
}
