package store

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pools for compression round-trips to reduce allocation overhead. Step
// payloads are written and read frequently when tasks archive long histories.
var (
	brotliWriterPool = sync.Pool{
		New: func() interface{} {
			// brotli.NewWriterLevel(nil, ...) yields a writer ready for Reset().
			return brotli.NewWriterLevel(nil, brotli.DefaultCompression)
		},
	}

	brotliReaderPool = sync.Pool{
		New: func() interface{} {
			// brotli.NewReader(nil) is the idiomatic way to create a reusable reader ready for Reset().
			return brotli.NewReader(nil)
		},
	}
)

// Shared empty reader used for safely resetting pooled readers.
var emptyReader = strings.NewReader("")

func compress(data []byte) ([]byte, error) {
	w := brotliWriterPool.Get().(*brotli.Writer)
	defer brotliWriterPool.Put(w)

	var buf bytes.Buffer
	w.Reset(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := brotliReaderPool.Get().(*brotli.Reader)
	defer func() {
		_ = r.Reset(emptyReader)
		brotliReaderPool.Put(r)
	}()

	if err := r.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("brotli reset: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("brotli read: %w", err)
	}
	return out, nil
}
