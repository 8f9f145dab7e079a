package mirror

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang/snappy"
	"github.com/smallbiznis/splitpay/internal/snapshot"
)

// Kind tags every blob written by this package.
const Kind = "splitpay.mirror"

// Envelope is the stored form of a mirror. Payload is the snappy-compressed
// snapshot JSON and Checksum is its CRC-32 (IEEE).
type Envelope struct {
	Kind          string    `json:"kind" validate:"required,eq=splitpay.mirror"`
	SchemaVersion int       `json:"schemaVersion" validate:"required,min=1"`
	SavedAt       time.Time `json:"savedAt" validate:"required"`
	Checksum      uint32    `json:"checksum"`
	Payload       []byte    `json:"payload" validate:"required"`
}

var envelopeValidator = validator.New(validator.WithRequiredStructEnabled())

// Encode wraps snap in an envelope.
func Encode(snap *snapshot.Snapshot, savedAt time.Time) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	payload := snappy.Encode(nil, raw)

	return json.Marshal(Envelope{
		Kind:          Kind,
		SchemaVersion: snap.Version,
		SavedAt:       savedAt.UTC(),
		Checksum:      crc32.ChecksumIEEE(payload),
		Payload:       payload,
	})
}

// Decode unwraps and fully validates a blob produced by Encode.
func Decode(blob []byte, v *snapshot.Validator) (*snapshot.Snapshot, error) {
	var env Envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrCorruptMirror, err)
	}
	if err := envelopeValidator.Struct(env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrCorruptMirror, err)
	}
	if !snapshot.IsSupportedVersion(env.SchemaVersion) {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrCorruptMirror, env.SchemaVersion)
	}
	if sum := crc32.ChecksumIEEE(env.Payload); sum != env.Checksum {
		return nil, fmt.Errorf("%w: checksum %08x, want %08x", ErrCorruptMirror, sum, env.Checksum)
	}

	raw, err := snappy.Decode(nil, env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorruptMirror, err)
	}
	snap, err := v.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMirror, err)
	}
	if snap.Version != env.SchemaVersion {
		return nil, fmt.Errorf("%w: envelope version %d does not match snapshot version %d", ErrCorruptMirror, env.SchemaVersion, snap.Version)
	}
	return snap, nil
}
