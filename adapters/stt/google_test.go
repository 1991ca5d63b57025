package stt

import (
	"context"
	"io"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
)

// recordingStream stands in for the gRPC stream and keeps the size of every
// audio request
type recordingStream struct {
	grpc.ClientStream
	sizes  []int
	closed chan struct{}
}

func newRecordingStream() *recordingStream {
	return &recordingStream{closed: make(chan struct{})}
}

func (r *recordingStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	r.sizes = append(r.sizes, len(req.GetAudioContent()))
	return nil
}

func (r *recordingStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	<-r.closed
	return nil, io.EOF
}

func (r *recordingStream) CloseSend() error {
	close(r.closed)
	return nil
}

func TestGoogleStreamSplitsLargeAudio(t *testing.T) {
	rec := newRecordingStream()
	stream := &GoogleSpeechToTextStream{
		stream: rec,
		ctx:    context.Background(),
		logger: zaptest.NewLogger(t),
		done:   make(chan struct{}),
	}

	// 2.5s of 16 kHz LINEAR16 audio
	if err := stream.Stream(make([]byte, 80000)); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if err := stream.Stream(make([]byte, 100)); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	want := []int{25600, 25600, 25600, 3200, 100}
	if len(rec.sizes) != len(want) {
		t.Fatalf("Expected %d requests, got %v", len(want), rec.sizes)
	}
	for i, size := range rec.sizes {
		if size > maxAudioChunkBytes {
			t.Errorf("Request %d carries %d bytes, over the %d limit", i, size, maxAudioChunkBytes)
		}
		if size != want[i] {
			t.Errorf("Request %d: expected %d bytes, got %d", i, want[i], size)
		}
	}

	if _, err := stream.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
}

func TestGoogleStreamEndWithoutAudio(t *testing.T) {
	rec := newRecordingStream()
	stream := &GoogleSpeechToTextStream{
		stream: rec,
		ctx:    context.Background(),
		logger: zaptest.NewLogger(t),
		done:   make(chan struct{}),
	}
	if err := stream.Stream(nil); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(rec.sizes) != 0 {
		t.Errorf("Expected no requests for empty audio, got %v", rec.sizes)
	}
	if _, err := stream.End(); err == nil {
		t.Error("Expected error when no audio was streamed")
	}
}
