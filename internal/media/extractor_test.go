package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMArgs_Whole(t *testing.T) {
	args := pcmArgs("/media/talk.mkv", nil, nil, "/tmp/talk.wav")
	assert.Equal(t, []string{
		"-v", "error",
		"-i", "/media/talk.mkv",
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-y",
		"/tmp/talk.wav",
	}, args)
}

func TestPCMArgs_Range(t *testing.T) {
	start := 90 * time.Second
	end := 100*time.Second + 500*time.Millisecond
	args := pcmArgs("/tmp/talk.wav", &start, &end, "/tmp/chunk.wav")

	assert.Contains(t, args, "-ss")
	assert.Contains(t, args, "90.000")
	assert.Contains(t, args, "-to")
	assert.Contains(t, args, "100.500")
	// window flags must precede the input for input-side seeking
	assert.Less(t, indexOf(args, "-ss"), indexOf(args, "-i"))
}

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}

func TestProbeArgs(t *testing.T) {
	args := probeArgs("/tmp/talk.wav")
	assert.Equal(t, []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"/tmp/talk.wav",
	}, args)
}

func TestParseProbeDuration_Format(t *testing.T) {
	d, err := ParseProbeDuration([]byte(`{"format":{"duration":"1200.480000"}}`))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(1200.48*float64(time.Second)), d)
}

func TestParseProbeDuration_StreamFallback(t *testing.T) {
	probe := `{"format":{},"streams":[{"duration":""},{"duration":"63.25"}]}`
	d, err := ParseProbeDuration([]byte(probe))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(63.25*float64(time.Second)), d)
}

func TestParseProbeDuration_NoDuration(t *testing.T) {
	_, err := ParseProbeDuration([]byte(`{"format":{},"streams":[{}]}`))
	require.Error(t, err)

	_, err = ParseProbeDuration([]byte(`not json`))
	require.Error(t, err)
}
