package logfields

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHelpers(t *testing.T) {
	require.Equal(t, KeyIntentID, IntentID("abc").Key)
	require.Equal(t, "manual", Reason("manual").Value.String())
	require.Equal(t, int64(3), Attempt(3).Value.Int64())
	require.Equal(t, 2*time.Second, Delay(2*time.Second).Value.Duration())
}

func TestHashIsShortened(t *testing.T) {
	require.Equal(t, "0123abcd", Hash("0123abcdef987654").Value.String())
	require.Equal(t, "abc", Hash("abc").Value.String())
}

func TestError(t *testing.T) {
	require.Equal(t, "", Error(nil).Value.String())
	require.Equal(t, "boom", Error(errors.New("boom")).Value.String())
}

func TestWatcherFields(t *testing.T) {
	require.Equal(t, KeyPath, Path("/tmp/memos.db").Key)
	require.Equal(t, "WRITE", Op("WRITE").Value.String())
	require.Equal(t, KeyPanic, Panic("boom").Key)
	require.Equal(t, "boom", Panic("boom").Value.String())
}
