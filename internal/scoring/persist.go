package scoring

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (e *Ensemble) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(*e); err != nil {
		return nil, fmt.Errorf("encode ensemble: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (e *Ensemble) UnmarshalBinary(data []byte) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(e); err != nil {
		return fmt.Errorf("decode ensemble: %w", err)
	}
	return nil
}

// Save writes the model artifact to path, creating parent directories.
func (e *Ensemble) Save(path string) error {
	data, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model artifact: %w", err)
	}
	return nil
}

// LoadFile reads a model artifact from path.
func LoadFile(path string) (*Ensemble, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from config
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var e Ensemble
	if err := e.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if len(e.Trees) == 0 {
		return nil, fmt.Errorf("model artifact %s contains no trees", path)
	}
	return &e, nil
}
