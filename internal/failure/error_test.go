package failure

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	require.Equal(t, "Neo.ClientError.Request.Invalid", StatusRequestInvalid.Code())
	require.Equal(t, "Neo.DatabaseError.General.UnknownError", StatusUnknownError.String())
}

func TestFromCauseReusesExistingError(t *testing.T) {
	original := From(StatusSyntaxError, "bad query")
	wrapped := errors.Wrap(original, "run")

	got := FromCause(wrapped)
	require.Same(t, original, got)
	require.False(t, got.IsFatal())
}

func TestFatalFromCauseDoesNotMutateExistingError(t *testing.T) {
	original := From(StatusSyntaxError, "bad query")

	got := FatalFromCause(original)
	require.True(t, got.IsFatal())
	require.False(t, original.IsFatal())
	require.Equal(t, original.Reference(), got.Reference())
}

func TestFromCauseStatusResolution(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{name: "plain", err: errors.New("boom"), want: StatusUnknownError},
		{name: "with status", err: WithStatus(errors.New("missing $x"), StatusParameterMissing), want: StatusParameterMissing},
		{name: "wrapped status", err: errors.Wrap(WithStatus(errors.New("nope"), StatusUnauthorized), "hello"), want: StatusUnauthorized},
		{name: "auth mark", err: MarkAuthExpired(errors.New("expired")), want: StatusAuthorizationExpired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FromCause(tc.err)
			require.Equal(t, tc.want, got.Status())
			require.Equal(t, tc.err, got.Cause())
			require.ErrorIs(t, got, tc.err)
		})
	}
}

func TestWithQueryIDCopies(t *testing.T) {
	e := From(StatusSyntaxError, "bad")
	tagged := e.WithQueryID(7)

	id, ok := tagged.QueryID()
	require.True(t, ok)
	require.Equal(t, int64(7), id)

	_, ok = e.QueryID()
	require.False(t, ok)
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "nil", err: nil, want: ClassNone},
		{name: "plain", err: errors.New("boom"), want: ClassNone},
		{name: "auth", err: errors.Wrap(MarkAuthExpired(errors.New("Auth expired!")), "run"), want: ClassAuthExpired},
		{name: "protocol", err: MarkProtocolFatal(errors.New("framing")), want: ClassFatal},
		{name: "fatality", err: NewFatality(FatalConnection, FatalFrom(StatusUnknownError, "x")), want: ClassFatal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DefaultClassifier(tc.err))
		})
	}
}

func TestAsFatality(t *testing.T) {
	f := NewFatality(FatalAuthExpired, FatalFrom(StatusAuthorizationExpired, "expired"))

	got, ok := AsFatality(errors.Wrap(f, "process"))
	require.True(t, ok)
	require.Equal(t, FatalAuthExpired, got.Kind)
	require.Contains(t, f.Error(), "auth_expired")

	_, ok = AsFatality(errors.New("plain"))
	require.False(t, ok)
}
