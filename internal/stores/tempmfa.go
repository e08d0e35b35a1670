package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const tempMFARecordVersion1 = 1

var (
	ErrTempMFANotFound = errors.New("temp mfa token not found")
	ErrTempMFAExpired  = errors.New("temp mfa token expired")
	ErrTempMFABackend  = errors.New("temp mfa backend unavailable")
)

// TempMFAToken is the server-side half of a pending MFA challenge. It binds
// the one-time token to the account, the half-open session awaiting MFA,
// and hashes of the client address and user agent observed at password time.
type TempMFAToken struct {
	AccountID string
	SessionID string
	IPHash    [32]byte
	UAHash    [32]byte
	ExpiresAt int64
}

type TempMFAStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTempMFAStore(redisClient redis.UniversalClient, prefix string) *TempMFAStore {
	if prefix == "" {
		prefix = "pm"
	}
	return &TempMFAStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *TempMFAStore) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

func (s *TempMFAStore) Save(
	ctx context.Context,
	tokenID string,
	record *TempMFAToken,
	ttl time.Duration,
) error {
	encoded, err := encodeTempMFAToken(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(tokenID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTempMFABackend, err)
	}
	return nil
}

// Consume atomically fetches and deletes the record via GETDEL. A second
// consume of the same token observes redis.Nil exactly like a token that
// never existed, which is what makes the token single-use under races.
func (s *TempMFAStore) Consume(ctx context.Context, tokenID string) (*TempMFAToken, error) {
	data, err := s.redis.GetDel(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTempMFANotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTempMFABackend, err)
	}

	record, err := decodeTempMFAToken(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		return nil, ErrTempMFAExpired
	}
	return record, nil
}

func (s *TempMFAStore) Delete(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTempMFABackend, err)
	}
	return n > 0, nil
}

func encodeTempMFAToken(record *TempMFAToken) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tempMFARecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.IPHash[:])
	buf.Write(record.UAHash[:])

	if len(record.AccountID) > 65535 || len(record.SessionID) > 65535 {
		return nil, errors.New("temp mfa id length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.SessionID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.SessionID)

	return buf.Bytes(), nil
}

func decodeTempMFAToken(data []byte) (*TempMFAToken, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tempMFARecordVersion1 {
		return nil, errors.New("invalid temp mfa record version")
	}

	record := &TempMFAToken{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.IPHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.UAHash[:]); err != nil {
		return nil, err
	}

	var accountLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountLen); err != nil {
		return nil, err
	}
	account := make([]byte, accountLen)
	if _, err := io.ReadFull(reader, account); err != nil {
		return nil, err
	}
	record.AccountID = string(account)

	var sessionLen uint16
	if err := binary.Read(reader, binary.BigEndian, &sessionLen); err != nil {
		return nil, err
	}
	session := make([]byte, sessionLen)
	if _, err := io.ReadFull(reader, session); err != nil {
		return nil, err
	}
	record.SessionID = string(session)

	return record, nil
}
