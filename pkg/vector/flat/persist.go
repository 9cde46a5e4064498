package flat

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/evermem/evermem-go/pkg/vector"
)

const (
	blobMagic   = "EVMF"
	blobVersion = uint32(1)

	// sideTableSuffix is appended to the index path for the payload
	// side-table file.
	sideTableSuffix = ".payloads"
)

// sideTable is the JSON shape of the persisted payload side-table. Slot keys
// are stringified integers.
type sideTable struct {
	Payloads map[string]vector.Payload `json:"payloads"`
	IDToSlot map[string]int            `json:"id_to_slot"`
	SlotToID map[string]string         `json:"slot_to_id"`
	NextSlot int                       `json:"next_slot"`
}

// save writes the vector blob and the payload side-table. Callers hold the
// write lock.
func (idx *Index) save() error {
	var buf bytes.Buffer
	buf.WriteString(blobMagic)
	if err := binary.Write(&buf, binary.LittleEndian, blobVersion); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(idx.dim)); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(idx.vectors))); err != nil {
		return err
	}
	for _, v := range idx.vectors {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := os.WriteFile(idx.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("flat: write index blob: %w", err)
	}

	side := sideTable{
		Payloads: idx.payloads,
		IDToSlot: idx.idToSlot,
		SlotToID: make(map[string]string, len(idx.slotToID)),
		NextSlot: idx.nextSlot,
	}
	for slot, id := range idx.slotToID {
		side.SlotToID[strconv.Itoa(slot)] = id
	}
	data, err := json.Marshal(side)
	if err != nil {
		return err
	}
	if err := os.WriteFile(idx.path+sideTableSuffix, data, 0o644); err != nil {
		return fmt.Errorf("flat: write side-table: %w", err)
	}
	return nil
}

// load restores persisted state. Missing files leave the index empty.
func (idx *Index) load() error {
	if err := idx.loadBlob(); err != nil {
		return err
	}
	return idx.loadSideTable()
}

func (idx *Index) loadBlob() error {
	data, err := os.ReadFile(idx.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	r := bytes.NewReader(data)
	magic := make([]byte, len(blobMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("read blob header: %w", err)
	}
	if string(magic) != blobMagic {
		return fmt.Errorf("unrecognized index blob at %s", idx.path)
	}
	var version, dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != blobVersion {
		return fmt.Errorf("unsupported index blob version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return err
	}
	if int(dim) != idx.dim {
		return fmt.Errorf("%w: persisted index has dimension %d, configured %d", vector.ErrDimensionMismatch, dim, idx.dim)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}

	idx.vectors = make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		v := make([]float32, idx.dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		idx.vectors = append(idx.vectors, v)
	}
	idx.nextSlot = len(idx.vectors)
	return nil
}

func (idx *Index) loadSideTable() error {
	data, err := os.ReadFile(idx.path + sideTableSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var side sideTable
	if err := json.Unmarshal(data, &side); err != nil {
		return fmt.Errorf("parse side-table: %w", err)
	}
	if side.NextSlot != len(idx.vectors) {
		return fmt.Errorf("side-table next_slot %d does not match blob size %d", side.NextSlot, len(idx.vectors))
	}

	idx.payloads = side.Payloads
	if idx.payloads == nil {
		idx.payloads = make(map[string]vector.Payload)
	}
	idx.idToSlot = side.IDToSlot
	if idx.idToSlot == nil {
		idx.idToSlot = make(map[string]int)
	}
	idx.slotToID = make(map[int]string, len(side.SlotToID))
	for key, id := range side.SlotToID {
		slot, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("parse side-table slot key %q: %w", key, err)
		}
		idx.slotToID[slot] = id
	}
	idx.nextSlot = side.NextSlot
	return nil
}
