package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// CheckpointMeta is free-form metadata stored under the header's
// __metadata__ key. Readers skip it; it never affects tensor decoding.
type CheckpointMeta map[string]string

// EncodeCheckpoint serializes float32 tensors into the wire format
// classifier source checkpoints ship in. Tensor names are emitted in sorted
// order with contiguous payload offsets, so encoding is deterministic and
// the result round-trips through OpenStoreFromBytes.
func EncodeCheckpoint(tensors []Tensor, meta CheckpointMeta) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: checkpoint needs at least one tensor")
	}

	byName := make(map[string]Tensor, len(tensors))
	names := make([]string, 0, len(tensors))

	for _, t := range tensors {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, errors.New("safetensors: tensor name must not be empty")
		}

		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		count, err := shapeElementCount(t.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if int64(len(t.Data)) != count {
			return nil, fmt.Errorf(
				"safetensors: tensor %q shape %v expects %d elements, got %d",
				name,
				t.Shape,
				count,
				len(t.Data),
			)
		}

		byName[name] = t
		names = append(names, name)
	}

	sort.Strings(names)

	header := make(map[string]json.RawMessage, len(names)+1)

	var payload bytes.Buffer

	for _, name := range names {
		t := byName[name]
		start := payload.Len()

		var word [4]byte
		for _, v := range t.Data {
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
			payload.Write(word[:])
		}

		entry, err := json.Marshal(storeHeaderEntry{
			DType:   dtypeF32,
			Shape:   append([]int64(nil), t.Shape...),
			Offsets: [2]int{start, payload.Len()},
		})
		if err != nil {
			return nil, fmt.Errorf("safetensors: encode header entry %q: %w", name, err)
		}

		header[name] = entry
	}

	if len(meta) > 0 {
		entry, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("safetensors: encode metadata: %w", err)
		}

		header["__metadata__"] = entry
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	var out bytes.Buffer
	out.Grow(8 + len(headerJSON) + payload.Len())

	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(headerJSON)))
	out.Write(prefix[:])
	out.Write(headerJSON)
	out.Write(payload.Bytes())

	return out.Bytes(), nil
}

// WriteCheckpoint writes tensors into a .safetensors checkpoint file.
func WriteCheckpoint(path string, tensors []Tensor, meta CheckpointMeta) error {
	data, err := EncodeCheckpoint(tensors, meta)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write checkpoint %s: %w", path, err)
	}

	return nil
}
