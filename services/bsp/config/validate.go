// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared by every config type in this package.
// Initialized in init() with custom validators.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their file key rather than the Go name.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})

	_ = validate.RegisterValidation("abspath", validateAbsPath)
	_ = validate.RegisterValidation("bazellabel", validateBazelLabel)
}

// validateAbsPath accepts absolute filesystem paths.
func validateAbsPath(fl validator.FieldLevel) bool {
	return filepath.IsAbs(fl.Field().String())
}

// validateBazelLabel accepts absolute labels such as //pkg:name or
// @repo//pkg:name.
func validateBazelLabel(fl validator.FieldLevel) bool {
	label := fl.Field().String()
	i := strings.Index(label, "//")
	if i < 0 {
		return false
	}
	return i == 0 || strings.HasPrefix(label, "@")
}
