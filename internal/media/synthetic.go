package media

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const opusFrame = 20 * time.Millisecond

// opusSilence is a single 20ms Opus frame of digital silence
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Synthetic returns a placeholder stream: a disabled video track that never
// produces frames and an audio track that sends silence.
func Synthetic() (*Stream, error) {
	s := newStream(StreamSynthetic)

	video, err := newTrack(KindVideo, webrtc.MimeTypeVP8, s.id, false)
	if err != nil {
		return nil, err
	}
	close(video.done)

	audio, err := newTrack(KindAudio, webrtc.MimeTypeOpus, s.id, true)
	if err != nil {
		return nil, err
	}

	s.tracks = []*Track{video, audio}
	go pumpSilence(audio)
	return s, nil
}

func pumpSilence(t *Track) {
	defer close(t.done)

	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopped():
			return
		case <-ticker.C:
			// write errors belong to a single binding; keep feeding the others
			_ = t.local.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame})
		}
	}
}
