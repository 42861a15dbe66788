package segment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSegment_PreservesOrderAndLength(t *testing.T) {
	s := Default()
	text := "First sentence here. Second sentence follows! Is this a question? Yes it is.\n\nA new paragraph starts now and goes on for a while to test wrapping behavior across boundaries."

	segments := s.Segment(text)
	assert.NotEmpty(t, segments)
	for _, seg := range segments {
		assert.LessOrEqual(t, len(seg), s.MaxSegmentLen)
	}

	joined := strings.Join(segments, " ")
	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	assert.Equal(t, normalize(text), normalize(joined))
}

func TestSegment_LongSentenceHardWraps(t *testing.T) {
	s := Default()
	long := strings.Repeat("a", 950)
	segments := s.Segment(long)
	for _, seg := range segments {
		assert.LessOrEqual(t, len(seg), s.MaxSegmentLen)
	}
	assert.Equal(t, long, strings.Join(segments, ""))
}

func TestTypingDuration_Bounds(t *testing.T) {
	s := Default()
	assert.Equal(t, 1000*time.Millisecond, s.TypingDuration(""))
	assert.Equal(t, 4000*time.Millisecond, s.TypingDuration(strings.Repeat("x", 200)))
}
