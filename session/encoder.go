package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Layout (big endian):
//
//	version(1) refresh_hash(32) created_at(8) expires_at(8)
//	user_len(1) user_id email_len(1) email
//
// The fixed-offset prefix lets the rotate script read the hash and expiry
// without parsing variable-length fields.
const (
	sessionFormatVersion = 1

	refreshHashOffset = 1
	expiresAtOffset   = refreshHashOffset + 32 + 8
	fixedPrefixLen    = expiresAtOffset + 8
)

var ErrInvalidEncoding = errors.New("invalid session encoding")

func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	if len(s.Email) > 255 {
		return nil, errors.New("email too long")
	}

	var buf bytes.Buffer
	buf.Grow(fixedPrefixLen + 2 + len(s.UserID) + len(s.Email))

	buf.WriteByte(sessionFormatVersion)
	buf.Write(s.RefreshHash[:])
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)
	buf.WriteByte(byte(len(s.Email)))
	buf.WriteString(s.Email)

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if version != sessionFormatVersion {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, ErrInvalidEncoding
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, ErrInvalidEncoding
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, ErrInvalidEncoding
	}

	if s.UserID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if s.Email, err = readShortString(reader); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, ErrInvalidEncoding
	}

	return s, nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", ErrInvalidEncoding
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrInvalidEncoding
	}
	return string(b), nil
}
