package speech

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestAtempoChain(t *testing.T) {
	cases := map[float64]string{
		1.5:  "atempo=1.5",
		2:    "atempo=2.0",
		4:    "atempo=2.0,atempo=2.0",
		5:    "atempo=2.0,atempo=2.0,atempo=1.25",
		0.5:  "atempo=0.5",
		0.25: "atempo=0.5,atempo=0.5",
		0.3:  "atempo=0.5,atempo=0.6",
		0.75: "atempo=0.75",
	}
	for speed, want := range cases {
		got, err := AtempoChain(speed)
		require.NoError(t, err, speed)
		assert.Equal(t, want, got, speed)
	}

	_, err := AtempoChain(0)
	assert.ErrorIs(t, err, ErrInvalidSpeed)
	_, err = AtempoChain(-2)
	assert.ErrorIs(t, err, ErrInvalidSpeed)
}

func TestTempoSkipsWithoutFFmpeg(t *testing.T) {
	tempo := &Tempo{
		lookPath: func(string) (string, error) { return "", errors.New("not found") },
		run: func(context.Context, string, ...string) error {
			t.Fatal("ffmpeg must not run")
			return nil
		},
	}
	assert.False(t, tempo.Available())

	out, changed, err := tempo.Apply(context.Background(), []byte("audio"), "mp3", 1.25)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []byte("audio"), out)
}

func TestTempoSkipsUnitSpeed(t *testing.T) {
	tempo := &Tempo{lookPath: func(string) (string, error) {
		t.Fatal("lookPath must not be consulted")
		return "", nil
	}}
	out, changed, err := tempo.Apply(context.Background(), []byte("audio"), "mp3", 1)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []byte("audio"), out)
}

func TestTempoReportsFFmpegFailure(t *testing.T) {
	tempo := &Tempo{
		lookPath: func(string) (string, error) { return "ffmpeg", nil },
		run:      func(context.Context, string, ...string) error { return errors.New("exit status 1") },
	}
	out, changed, err := tempo.Apply(context.Background(), []byte("audio"), "mp3", 2)
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, []byte("audio"), out)
}
