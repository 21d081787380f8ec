package playback

import "testing"

func TestWriteChunkStopsAfterStreamReleased(t *testing.T) {
	s := &DeviceSink{out: []float32{0.9, 0.9, 0.9, 0.9}}

	if s.writeChunk([]float32{0.1, 0.2}) {
		t.Error("writeChunk must refuse to write once the stream is released")
	}
	for i, v := range s.out {
		if v != 0.9 {
			t.Errorf("out[%d] = %v, buffer must be untouched without a stream", i, v)
		}
	}
}
