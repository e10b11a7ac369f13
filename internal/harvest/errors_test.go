package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "empty", err: fmt.Errorf("extract: %w", ErrEmptyContent), want: KindEmptyContent},
		{name: "parse", err: fmt.Errorf("extract: %w", ErrParseFailure), want: KindParseFailure},
		{name: "notify", err: ErrNotifyFailure, want: KindNotifyFailure},
		{name: "unclassified", err: errors.New("boom"), want: KindNetworkFailure},
		{
			name: "listing wraps parse",
			err:  fmt.Errorf("%w: %w", ErrListingUnavailable, ErrParseFailure),
			want: KindListingUnavailable,
		},
		{
			name: "fetch error",
			err:  &FetchError{Locator: "https://example.com", Attempts: 4, Err: errors.New("dial")},
			want: KindNetworkFailure,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestFetchErrorUnwrapsCauseAndClass(t *testing.T) {
	t.Parallel()

	err := &FetchError{Locator: "https://example.com/a", Attempts: 2, Err: context.DeadlineExceeded}
	require.ErrorIs(t, err, ErrNetworkFailure)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, IsCanceled(err))
	require.Contains(t, err.Error(), "after 2 attempt(s)")
}

func TestSeverityColor(t *testing.T) {
	t.Parallel()

	require.Equal(t, 65280, SeveritySuccess.Color())
	require.Equal(t, 16753920, SeverityWarning.Color())
	require.Equal(t, 16776960, SeverityInfo.Color())
	require.Equal(t, 16711680, SeverityError.Color())
	require.Equal(t, 16711680, Severity("bogus").Color())
}
