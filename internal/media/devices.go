package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
)

// Constraints selects which kinds a UserMedia capture must contain
type Constraints struct {
	Video bool
	Audio bool
}

// Devices opens capture streams
type Devices interface {
	UserMedia(ctx context.Context, c Constraints) (*Stream, error)
	DisplayMedia(ctx context.Context) (*Stream, error)
	DisplaySupported() bool
}

// FileDevices captures from media files: camera and screen from IVF
// (VP8/VP9/AV1), microphone from Ogg Opus. Camera and microphone loop,
// the screen ends when its file is exhausted.
type FileDevices struct {
	CameraFile     string
	MicrophoneFile string
	ScreenFile     string
	Log            zerolog.Logger
}

func (d *FileDevices) UserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Video && !c.Audio {
		return nil, fmt.Errorf("user media: %w", ErrDeviceUnavailable)
	}

	var (
		video *ivfSource
		audio *oggSource
		err   error
	)
	closeSources := func() {
		if video != nil {
			video.close()
		}
		if audio != nil {
			audio.close()
		}
	}

	if c.Video {
		if video, err = openIVF(d.CameraFile); err != nil {
			return nil, fmt.Errorf("camera: %w", err)
		}
	}
	if c.Audio {
		if audio, err = openOgg(d.MicrophoneFile); err != nil {
			closeSources()
			return nil, fmt.Errorf("microphone: %w", err)
		}
	}

	s := newStream(StreamCamera)
	var videoTrack, audioTrack *Track
	if video != nil {
		if videoTrack, err = newTrack(KindVideo, video.mime, s.id, true); err != nil {
			closeSources()
			return nil, err
		}
		s.tracks = append(s.tracks, videoTrack)
	}
	if audio != nil {
		if audioTrack, err = newTrack(KindAudio, webrtc.MimeTypeOpus, s.id, true); err != nil {
			closeSources()
			return nil, err
		}
		s.tracks = append(s.tracks, audioTrack)
	}

	if videoTrack != nil {
		go d.pumpIVF(video, videoTrack, s, true)
	}
	if audioTrack != nil {
		go d.pumpOgg(audio, audioTrack)
	}
	return s, nil
}

func (d *FileDevices) DisplayMedia(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.DisplaySupported() {
		return nil, ErrDisplayUnsupported
	}

	src, err := openIVF(d.ScreenFile)
	if err != nil {
		return nil, fmt.Errorf("screen: %w", err)
	}

	s := newStream(StreamDisplay)
	t, err := newTrack(KindVideo, src.mime, s.id, true)
	if err != nil {
		src.close()
		return nil, err
	}
	s.tracks = []*Track{t}
	go d.pumpIVF(src, t, s, false)
	return s, nil
}

func (d *FileDevices) DisplaySupported() bool {
	return d.ScreenFile != ""
}

func openFile(path string) (*os.File, error) {
	if path == "" {
		return nil, ErrDeviceUnavailable
	}
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %w", path, ErrDeviceUnavailable)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%s: %w", path, ErrPermissionDenied)
	case err != nil:
		return nil, err
	}
	return f, nil
}

type ivfSource struct {
	file     *os.File
	reader   *ivfreader.IVFReader
	mime     string
	interval time.Duration
}

func (s *ivfSource) close() { s.file.Close() }

func openIVF(path string) (*ivfSource, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var mime string
	switch header.FourCC {
	case "VP80":
		mime = webrtc.MimeTypeVP8
	case "VP90":
		mime = webrtc.MimeTypeVP9
	case "AV01":
		mime = webrtc.MimeTypeAV1
	default:
		f.Close()
		return nil, fmt.Errorf("%s: unsupported codec %q", path, header.FourCC)
	}

	interval := 33 * time.Millisecond
	if header.TimebaseDenominator != 0 && header.TimebaseNumerator != 0 {
		interval = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}

	return &ivfSource{file: f, reader: reader, mime: mime, interval: interval}, nil
}

// rewind restarts the source from its first frame
func (s *ivfSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := ivfreader.NewWith(s.file)
	if err != nil {
		return err
	}
	s.reader = reader
	return nil
}

func (d *FileDevices) pumpIVF(src *ivfSource, t *Track, s *Stream, loop bool) {
	defer func() {
		src.close()
		close(t.done)
	}()

	ticker := time.NewTicker(src.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopped():
			return
		case <-ticker.C:
		}

		frame, _, err := src.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if !loop {
				s.markEnded()
				return
			}
			if err := src.rewind(); err != nil {
				d.Log.Warn().Err(err).Str("track", t.ID()).Msg("failed to rewind video source")
				s.markEnded()
				return
			}
			continue
		}
		if err != nil {
			d.Log.Warn().Err(err).Str("track", t.ID()).Msg("video source read failed")
			s.markEnded()
			return
		}

		_ = t.local.WriteSample(media.Sample{Data: frame, Duration: src.interval})
	}
}

type oggSource struct {
	file   *os.File
	reader *oggreader.OggReader
}

func (s *oggSource) close() { s.file.Close() }

func openOgg(path string) (*oggSource, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &oggSource{file: f, reader: reader}, nil
}

func (s *oggSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := oggreader.NewWith(s.file)
	if err != nil {
		return err
	}
	s.reader = reader
	return nil
}

// pumpOgg paces Ogg pages by granule position at 48kHz
func (d *FileDevices) pumpOgg(src *oggSource, t *Track) {
	defer func() {
		src.close()
		close(t.done)
	}()

	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-t.stopped():
			return
		case <-ticker.C:
		}

		page, header, err := src.reader.ParseNextPage()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if err := src.rewind(); err != nil {
				d.Log.Warn().Err(err).Str("track", t.ID()).Msg("failed to rewind audio source")
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			d.Log.Warn().Err(err).Str("track", t.ID()).Msg("audio source read failed")
			return
		}

		duration := opusFrame
		if header.GranulePosition > lastGranule {
			samples := header.GranulePosition - lastGranule
			duration = time.Duration(float64(samples) / 48000 * float64(time.Second))
		}
		lastGranule = header.GranulePosition

		_ = t.local.WriteSample(media.Sample{Data: page, Duration: duration})
	}
}
