// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package command

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/staranto/swcache/internal/output"
	"github.com/staranto/swcache/internal/store"
)

type FlagValidatorType func(any) error

func FlagValidators(value any, validators ...FlagValidatorType) error {
	for _, v := range validators {
		if err := v(value); err != nil {
			return err
		}
	}
	return nil
}

// JammedFlagValidator verifies that the arg following a flag does not begin
// with '--'.  urfave/cli allows this and I don't see how to turn it off.
func JammedFlagValidator(value any) error {
	if strings.HasPrefix(value.(string), "--") {
		return errors.New("must not begin with '--'")
	}
	return nil
}

func NotBlankValidator(value any) error {
	if strings.TrimSpace(value.(string)) == "" {
		return errors.New("must not be blank")
	}
	return JammedFlagValidator(value)
}

func OutputValidator(value any) error {
	if !slices.Contains(output.Formats, value.(string)) {
		return fmt.Errorf("must be one of %v", output.Formats)
	}
	return nil
}

func StoreKindValidator(value any) error {
	if !slices.Contains(store.Kinds, value.(string)) {
		return fmt.Errorf("must be one of %v", store.Kinds)
	}
	return nil
}

// URLValidator accepts an absolute http or https URL.
func URLValidator(value any) error {
	u, err := url.Parse(value.(string))
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http or https URL")
	}
	return nil
}

func AbsolutePathValidator(value any) error {
	if !strings.HasPrefix(value.(string), "/") {
		return errors.New("must begin with '/'")
	}
	return nil
}
