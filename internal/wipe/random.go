package wipe

import (
	"crypto/rand"
	"io"

	"github.com/cockroachdb/errors"
)

// RandomBlockSource выдает блоки случайных байт из CSPRNG.
// Fallback на math/rand нет: предсказуемые данные затирания бесполезны.
type RandomBlockSource struct {
	reader io.Reader
}

func NewRandomBlockSource() *RandomBlockSource {
	return &RandomBlockSource{reader: rand.Reader}
}

// NextBlock returns n random bytes in a pooled buffer. The caller hands
// the buffer back with PutBuffer once it has been written.
func (s *RandomBlockSource) NextBlock(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Newf("negative block size %d", n)
	}
	if n == 0 {
		return []byte{}, nil
	}

	buf := GetBuffer(n)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		PutBuffer(buf)
		return nil, errors.Wrap(err, "read random block")
	}
	return buf, nil
}
