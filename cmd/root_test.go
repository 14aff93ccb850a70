package cmd

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtzll/ytsubs/internal"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "ytsubs"}
	internal.AddRunFlags(cmd)
	return cmd
}

func TestModeFromArgs(t *testing.T) {
	mode, err := modeFromArgs(newRunCommand(), nil)
	require.NoError(t, err)
	assert.Equal(t, internal.ModeSubscriptions, mode.Kind)

	mode, err = modeFromArgs(newRunCommand(), []string{"tAP1eZYEuKA", "https://youtu.be/dQw4w9WgXcQ"})
	require.NoError(t, err)
	assert.Equal(t, internal.ModeExplicit, mode.Kind)
	assert.Len(t, mode.Refs, 2)

	cmd := newRunCommand()
	require.NoError(t, cmd.Flags().Set("playlist", "  Watch later queue "))
	mode, err = modeFromArgs(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, internal.ModePlaylist, mode.Kind)
	assert.Equal(t, "Watch later queue", mode.Playlist)

	_, err = modeFromArgs(cmd, []string{"tAP1eZYEuKA"})
	assert.ErrorIs(t, err, internal.ErrInvalidMode)
}

func TestModeFromArgs_MistypedCommand(t *testing.T) {
	_, err := modeFromArgs(rootCmd, []string{"sho"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you mean: show?")

	_, err = modeFromArgs(newRunCommand(), []string{"zzz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Use --help")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, internal.ExitOK, ExitCode(nil))
	assert.Equal(t, internal.ExitFatal, ExitCode(errors.New("boom")))
	assert.Equal(t, internal.ExitBlocked, ExitCode(&exitError{code: internal.ExitBlocked}))
}
