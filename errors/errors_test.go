// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors_test

import (
	"context"
	e "errors"
	"testing"

	"github.com/envira/ieq-pipeline/errors"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeepsKind(t *testing.T) {
	for name, tc := range map[string]struct {
		err     error
		message string
	}{
		"Deadline": {context.DeadlineExceeded, "store append timed out"},
		"Canceled": {context.Canceled, "store append cancelled"},
		"Other":    {e.New("disk full"), "store append"},
	} {
		t.Run(name, func(t *testing.T) {
			err := errors.Normalize(tc.err, errors.StoreError, "store append")

			require.True(t, errors.IsKind(err, errors.StoreError))
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, tc.message, err.(*errors.Error).Message)
		})
	}
}

func TestNormalizePassesThrough(t *testing.T) {
	require.NoError(t, errors.Normalize(nil, errors.StoreError, "store append"))

	orig := &errors.Error{Kind: errors.ArgumentInvalid, Message: "bad record"}
	require.Same(t, orig, errors.Normalize(orig, errors.StoreError, "append"))
}

func TestIsByKind(t *testing.T) {
	err := errors.Normalize(
		context.DeadlineExceeded,
		errors.StoreError,
		"store append",
	)
	require.ErrorIs(t, err, &errors.Error{Kind: errors.StoreError})
	require.NotErrorIs(t, err, &errors.Error{Kind: errors.DecodeError})
}
