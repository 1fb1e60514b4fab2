package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeSubmitInvokesHandler(t *testing.T) {
	f := NewFake()
	f.Handle = func(cmd Command) Reply {
		return Reply{Values: [][]byte{[]byte("ok")}}
	}

	var got Reply
	f.Submit(Command{Key: "k"}, func(r Reply) { got = r })

	require.Equal(t, [][]byte{[]byte("ok")}, got.Values)
	require.Len(t, f.Calls(), 1)
}

func TestFakeSubmitAfterCloseDropsCommand(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Close())

	called := false
	f.Submit(Command{}, func(Reply) { called = true })
	require.False(t, called)
}

func TestFakeDefaultHandlerReturnsEmptyReply(t *testing.T) {
	f := NewFake()
	var got Reply
	f.Submit(Command{}, func(r Reply) { got = r })
	require.Equal(t, Reply{}, got)
}
