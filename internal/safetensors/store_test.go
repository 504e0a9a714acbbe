package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/x448/float16"
)

func TestEncodeThenOpenRoundtrip(t *testing.T) {
	tensors := []Tensor{
		{Name: "head.weight", Shape: []int64{3, 4}, Data: seq(12)},
		{Name: "head.bias", Shape: []int64{3}, Data: []float32{0.5, -0.5, 2}},
	}

	data, err := EncodeCheckpoint(tensors, nil)
	if err != nil {
		t.Fatalf("EncodeCheckpoint: %v", err)
	}

	store, err := OpenStoreFromBytes(data)
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	names := store.Names()
	if len(names) != 2 || names[0] != "head.bias" || names[1] != "head.weight" {
		t.Fatalf("Names = %v; want sorted [head.bias head.weight]", names)
	}

	if !store.Has("head.weight") || store.Has("missing") {
		t.Error("Has reported wrong membership")
	}

	shape, err := store.Shape("head.weight")
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if len(shape) != 2 || shape[0] != 3 || shape[1] != 4 {
		t.Errorf("Shape = %v; want [3 4]", shape)
	}

	tensor, err := store.Tensor("head.bias")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	want := []float32{0.5, -0.5, 2}
	for i, v := range want {
		if tensor.Data[i] != v {
			t.Errorf("head.bias[%d] = %v; want %v", i, tensor.Data[i], v)
		}
	}
}

func TestWriteCheckpointRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")

	err := WriteCheckpoint(path, []Tensor{{Name: "w", Shape: []int64{2, 2}, Data: seq(4)}}, nil)
	if err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}

	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	tensor, err := store.Tensor("w")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	if len(tensor.Data) != 4 || tensor.Data[3] != 3 {
		t.Errorf("decoded data = %v; want [0 1 2 3]", tensor.Data)
	}
}

func TestDecodeF16(t *testing.T) {
	values := []float32{1.5, -0.25, 0, 4096}

	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[i*2:], float16.Fromfloat32(v).Bits())
	}

	data := buildFile(t, map[string]storeHeaderEntry{
		"t": {DType: "F16", Shape: []int64{4}, Offsets: [2]int{0, len(raw)}},
	}, raw)

	store, err := OpenStoreFromBytes(data)
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}

	tensor, err := store.Tensor("t")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}

	for i, want := range values {
		if tensor.Data[i] != want {
			t.Errorf("F16 decode [%d] = %v; want %v", i, tensor.Data[i], want)
		}
	}
}

func TestDecodeBF16(t *testing.T) {
	values := []float32{1, -2, 0.5}

	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(math.Float32bits(v)>>16))
	}

	data := buildFile(t, map[string]storeHeaderEntry{
		"t": {DType: "BF16", Shape: []int64{3}, Offsets: [2]int{0, len(raw)}},
	}, raw)

	store, err := OpenStoreFromBytes(data)
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}

	tensor, err := store.Tensor("t")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}

	for i, want := range values {
		if tensor.Data[i] != want {
			t.Errorf("BF16 decode [%d] = %v; want %v", i, tensor.Data[i], want)
		}
	}
}

func TestOpenRejectsTruncatedData(t *testing.T) {
	data := buildFile(t, map[string]storeHeaderEntry{
		"t": {DType: "F32", Shape: []int64{4}, Offsets: [2]int{0, 8}},
	}, make([]byte, 8))

	_, err := OpenStoreFromBytes(data)
	if err == nil || !strings.Contains(err.Error(), "needs") {
		t.Fatalf("OpenStoreFromBytes error = %v; want byte-count mismatch", err)
	}
}

func TestOpenRejectsOutOfBoundsOffsets(t *testing.T) {
	data := buildFile(t, map[string]storeHeaderEntry{
		"t": {DType: "F32", Shape: []int64{1}, Offsets: [2]int{0, 1 << 20}},
	}, make([]byte, 4))

	_, err := OpenStoreFromBytes(data)
	if err == nil || !strings.Contains(err.Error(), "exceeds file size") {
		t.Fatalf("OpenStoreFromBytes error = %v; want bounds error", err)
	}
}

func TestOpenRejectsUnsupportedDType(t *testing.T) {
	data := buildFile(t, map[string]storeHeaderEntry{
		"t": {DType: "I64", Shape: []int64{1}, Offsets: [2]int{0, 8}},
	}, make([]byte, 8))

	_, err := OpenStoreFromBytes(data)
	if err == nil || !strings.Contains(err.Error(), "unsupported dtype") {
		t.Fatalf("OpenStoreFromBytes error = %v; want unsupported dtype", err)
	}
}

func TestOpenRejectsShortFile(t *testing.T) {
	for _, data := range [][]byte{nil, {1, 2, 3}} {
		if _, err := OpenStoreFromBytes(data); err == nil {
			t.Errorf("OpenStoreFromBytes(%d bytes) succeeded; want error", len(data))
		}
	}
}

func TestTensorNotFound(t *testing.T) {
	data, err := EncodeCheckpoint([]Tensor{{Name: "w", Shape: []int64{1}, Data: []float32{1}}}, nil)
	if err != nil {
		t.Fatalf("EncodeCheckpoint: %v", err)
	}

	store, err := OpenStoreFromBytes(data)
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}

	if _, err := store.Tensor("missing"); err == nil {
		t.Error("Tensor(missing) succeeded; want error")
	}

	if _, err := store.Shape("missing"); err == nil {
		t.Error("Shape(missing) succeeded; want error")
	}
}

func TestEncodeValidation(t *testing.T) {
	cases := []struct {
		name    string
		tensors []Tensor
	}{
		{"empty set", nil},
		{"blank name", []Tensor{{Name: " ", Shape: []int64{1}, Data: []float32{1}}}},
		{"shape mismatch", []Tensor{{Name: "w", Shape: []int64{3}, Data: []float32{1}}}},
		{"duplicate name", []Tensor{
			{Name: "w", Shape: []int64{1}, Data: []float32{1}},
			{Name: "w", Shape: []int64{1}, Data: []float32{2}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := EncodeCheckpoint(tc.tensors, nil); err == nil {
				t.Error("EncodeCheckpoint succeeded; want error")
			}
		})
	}
}

func TestMetadataEntryIgnored(t *testing.T) {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, math.Float32bits(7))

	headerJSON, err := json.Marshal(map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"t": storeHeaderEntry{
			DType:   "F32",
			Shape:   []int64{1},
			Offsets: [2]int{0, 4},
		},
	})
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	data := assembleFile(headerJSON, raw)

	store, err := OpenStoreFromBytes(data)
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}

	if names := store.Names(); len(names) != 1 || names[0] != "t" {
		t.Errorf("Names = %v; want [t]", names)
	}
}

func TestEncodeCheckpointMetadataRoundtrip(t *testing.T) {
	data, err := EncodeCheckpoint(
		[]Tensor{{Name: "classifier.weight", Shape: []int64{2, 3}, Data: seq(6)}},
		CheckpointMeta{"format": "imageclassify", "classes": "2"},
	)
	if err != nil {
		t.Fatalf("EncodeCheckpoint: %v", err)
	}

	store, err := OpenStoreFromBytes(data)
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}

	// Metadata must not surface as a tensor.
	if names := store.Names(); len(names) != 1 || names[0] != "classifier.weight" {
		t.Errorf("Names = %v; want [classifier.weight]", names)
	}

	shape, err := store.Shape("classifier.weight")
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if len(shape) != 2 || shape[0] != 2 || shape[1] != 3 {
		t.Errorf("Shape = %v; want [2 3]", shape)
	}
}

func buildFile(t *testing.T, header map[string]storeHeaderEntry, raw []byte) []byte {
	t.Helper()

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	return assembleFile(headerJSON, raw)
}

func assembleFile(headerJSON, raw []byte) []byte {
	out := make([]byte, 8, 8+len(headerJSON)+len(raw))
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, raw...)

	return out
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestOpenStoreMissingFile(t *testing.T) {
	_, err := OpenStore(filepath.Join(t.TempDir(), "nope.safetensors"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("OpenStore error = %v; want wrapped os.ErrNotExist", err)
	}
}
