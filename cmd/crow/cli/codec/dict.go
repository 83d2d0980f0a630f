package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Namespace identifies a section of the name dictionary.
type Namespace int

const (
	NSTables Namespace = iota
	NSColumns
)

const (
	dictMagic   = "CRDICT"
	dictVersion = 0x01
	dictHdrSize = 16 // 6 magic + 1 version + 1 reserved + 4 n_tables + 4 n_columns
)

// Dict maps table and column names to compact indices.
type Dict struct {
	Tables  []string
	Columns []string

	tableIdx  map[string]uint64
	columnIdx map[string]uint64
}

// NewDict creates an empty dictionary.
func NewDict() *Dict {
	return &Dict{
		tableIdx:  make(map[string]uint64),
		columnIdx: make(map[string]uint64),
	}
}

// LookupOrAdd returns the index for value in the given namespace,
// adding it if it doesn't exist.
func (d *Dict) LookupOrAdd(ns Namespace, value string) uint64 {
	slice, idx := d.nsRef(ns)
	if i, ok := idx[value]; ok {
		return i
	}
	i := uint64(len(*slice))
	*slice = append(*slice, value)
	idx[value] = i
	return i
}

// Lookup returns the index for value without adding it.
func (d *Dict) Lookup(ns Namespace, value string) (uint64, bool) {
	_, idx := d.nsRef(ns)
	i, ok := idx[value]
	return i, ok
}

// Get returns the string at the given index in the namespace.
func (d *Dict) Get(ns Namespace, index uint64) (string, error) {
	slice, _ := d.nsRef(ns)
	if index >= uint64(len(*slice)) {
		return "", fmt.Errorf("dict: index %d out of range for namespace %d (len %d)", index, ns, len(*slice))
	}
	return (*slice)[index], nil
}

// Len returns the number of entries in a namespace.
func (d *Dict) Len(ns Namespace) int {
	slice, _ := d.nsRef(ns)
	return len(*slice)
}

func (d *Dict) nsRef(ns Namespace) (*[]string, map[string]uint64) {
	switch ns {
	case NSTables:
		return &d.Tables, d.tableIdx
	case NSColumns:
		return &d.Columns, d.columnIdx
	default:
		panic(fmt.Sprintf("dict: unknown namespace %d", ns))
	}
}

// Encode serializes the dictionary. Entries are uvarint length-prefixed.
func (d *Dict) Encode() []byte {
	buf := make([]byte, dictHdrSize)
	copy(buf[0:6], dictMagic)
	buf[6] = dictVersion
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(d.Tables)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(d.Columns)))

	for _, s := range d.Tables {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	for _, s := range d.Columns {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

// LoadDict parses an encoded dictionary.
func LoadDict(data []byte) (*Dict, error) {
	if len(data) < dictHdrSize {
		return nil, errors.New("dict: data too short for header")
	}
	if magic := string(data[0:6]); magic != dictMagic {
		return nil, fmt.Errorf("dict: bad magic %q, want %q", magic, dictMagic)
	}
	if data[6] != dictVersion {
		return nil, fmt.Errorf("dict: unsupported version %d", data[6])
	}

	nTables := int(binary.LittleEndian.Uint32(data[8:12]))
	nColumns := int(binary.LittleEndian.Uint32(data[12:16]))

	d := NewDict()
	pos := dictHdrSize

	read := func(ns Namespace, n int) error {
		for i := 0; i < n; i++ {
			l, k := binary.Uvarint(data[pos:])
			if k <= 0 {
				return fmt.Errorf("dict: truncated length at namespace %d entry %d", ns, i)
			}
			pos += k
			if l > uint64(len(data)-pos) {
				return fmt.Errorf("dict: truncated data at namespace %d entry %d", ns, i)
			}
			d.LookupOrAdd(ns, string(data[pos:pos+int(l)]))
			pos += int(l)
		}
		return nil
	}
	if err := read(NSTables, nTables); err != nil {
		return nil, err
	}
	if err := read(NSColumns, nColumns); err != nil {
		return nil, err
	}
	if pos != len(data) {
		return nil, fmt.Errorf("dict: %d trailing bytes", len(data)-pos)
	}
	return d, nil
}
