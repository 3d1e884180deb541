// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
)

// ErrNotFileURI indicates a URI that does not use the file scheme.
var ErrNotFileURI = errors.New("not a file uri")

// FileURI converts an absolute filesystem path into a file:// URI.
func FileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// PathFromURI converts a file:// URI into a cleaned filesystem path.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: %q", ErrNotFileURI, uri)
	}
	if u.Path == "" {
		return "", fmt.Errorf("%w: %q has no path", ErrNotFileURI, uri)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}
