package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/goSession/identity"
)

const (
	sessionFormatVersionCurrent = 2
	sessionFormatVersionV1      = 1
)

// ErrCorrupt is returned for blobs that are not a known session encoding.
var ErrCorrupt = errors.New("session blob corrupt")

// Encode writes s in the current binary layout:
//
//	version | provider | len+userID | len+label | createdAt (unix nanos, big endian)
func Encode(s identity.Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(3 + len(s.UserID) + len(s.DisplayLabel) + 8)

	buf.WriteByte(sessionFormatVersionCurrent)
	buf.WriteByte(byte(s.Provider))

	if len(s.UserID) == 0 {
		return nil, errors.New("userID required")
	}
	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if len(s.DisplayLabel) > 255 {
		return nil, errors.New("display label too long")
	}
	buf.WriteByte(byte(len(s.DisplayLabel)))
	buf.WriteString(s.DisplayLabel)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixNano()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode reads any supported layout. Version 1 blobs predate display labels and decode
// with an empty label.
func Decode(data []byte) (identity.Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return identity.Session{}, ErrCorrupt
	}
	if version != sessionFormatVersionCurrent && version != sessionFormatVersionV1 {
		return identity.Session{}, ErrCorrupt
	}

	var s identity.Session

	provider, err := reader.ReadByte()
	if err != nil {
		return identity.Session{}, ErrCorrupt
	}
	s.Provider = identity.ProviderKind(provider)

	userID, err := readShortString(reader)
	if err != nil || userID == "" {
		return identity.Session{}, ErrCorrupt
	}
	s.UserID = userID

	if version == sessionFormatVersionCurrent {
		label, err := readShortString(reader)
		if err != nil {
			return identity.Session{}, ErrCorrupt
		}
		s.DisplayLabel = label
	}

	var created int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return identity.Session{}, ErrCorrupt
	}
	s.CreatedAt = time.Unix(0, created).UTC()

	if reader.Len() != 0 {
		return identity.Session{}, ErrCorrupt
	}
	return s, nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
