package store

import (
	"bytes"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/irvingoujAtDevolution/source-fast/internal/text"
)

// encodePosting serializes a posting bitmap to Roaring's portable binary
// container format.
func encodePosting(bm *roaring.Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("store: encode posting: %w", err)
	}
	return buf.Bytes(), nil
}

// decodePosting deserializes a posting bitmap previously written by
// encodePosting. A decode failure indicates on-disk corruption.
func decodePosting(data []byte) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store: decode posting: %w", err)
	}
	return bm, nil
}

// encodeTrigramSet stores a sorted trigram slice as a flat concatenation of
// 3-byte windows. The encoding is self-describing: its length is always a
// multiple of 3, and the caller already controls sort order.
func encodeTrigramSet(trigrams []text.Trigram) []byte {
	out := make([]byte, 0, len(trigrams)*3)
	for _, t := range trigrams {
		out = append(out, t[0], t[1], t[2])
	}
	return out
}

func decodeTrigramSet(data []byte) ([]text.Trigram, error) {
	if len(data)%3 != 0 {
		return nil, fmt.Errorf("store: decode trigram set: length %d not a multiple of 3", len(data))
	}
	out := make([]text.Trigram, 0, len(data)/3)
	for i := 0; i+3 <= len(data); i += 3 {
		out = append(out, text.Trigram{data[i], data[i+1], data[i+2]})
	}
	return out, nil
}
