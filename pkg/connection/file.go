package connection

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ipbus/uhal-go/pkg/client"
)

// Connections file errors.
var (
	ErrUnknownDevice     = errors.New("unknown device")
	ErrDuplicateDevice   = errors.New("duplicate device id")
	ErrInvalidEntry      = errors.New("invalid connection entry")
	ErrUnsupportedFormat = errors.New("unsupported connections file format")
)

// Format is a connections file encoding.
type Format uint8

const (
	// FormatXML is the classic uHAL <connections> document.
	FormatXML Format = iota
	// FormatYAML is a YAML document with a connections list.
	FormatYAML
	// FormatTOML is a TOML document with a [[connections]] array.
	FormatTOML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	default:
		return "unknown"
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatXML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// Entry describes one device.
type Entry struct {
	ID           string `xml:"id,attr" yaml:"id" toml:"id"`
	URI          string `xml:"uri,attr" yaml:"uri" toml:"uri"`
	AddressTable string `xml:"address_table,attr" yaml:"address_table,omitempty" toml:"address_table"`
}

// File is a parsed connections file.
type File struct {
	XMLName     xml.Name `xml:"connections" yaml:"-" toml:"-"`
	Connections []Entry  `xml:"connection" yaml:"connections" toml:"connections"`
}

// LoadFile reads, parses and validates a connections file. Relative address
// tables are resolved against the file's directory.
func LoadFile(path string) (*File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("connections load failed (%s): %w", path, err)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("connections parse failed (%s): %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range f.Connections {
		f.Connections[i].AddressTable = ResolveAddressTable(dir, f.Connections[i].AddressTable)
	}
	return f, nil
}

// Parse decodes and validates a connections document.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatXML:
		if err := xml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys: %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	for i := range f.Connections {
		e := &f.Connections[i]
		e.ID = strings.TrimSpace(e.ID)
		e.URI = strings.TrimSpace(e.URI)
		e.AddressTable = strings.TrimSpace(e.AddressTable)
	}
	if err := ValidateFile(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ValidateFile checks every entry and that IDs are unique.
func ValidateFile(f *File) error {
	seen := make(map[string]bool, len(f.Connections))
	for i, e := range f.Connections {
		if err := ValidateEntry(e); err != nil {
			return fmt.Errorf("connection[%d] invalid: %w", i, err)
		}
		if seen[e.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateDevice, e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

// ValidateEntry checks a single entry.
func ValidateEntry(e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if e.URI == "" {
		return fmt.Errorf("%w: %s: uri is required", ErrInvalidEntry, e.ID)
	}
	if _, err := client.ParseURI(e.URI); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidEntry, e.ID, err)
	}
	return nil
}

// ResolveAddressTable strips a file:// prefix and makes a relative path
// absolute against dir. Other schemes are returned unchanged.
func ResolveAddressTable(dir, table string) string {
	if table == "" {
		return ""
	}
	path, isFile := strings.CutPrefix(table, "file://")
	if !isFile && strings.Contains(table, "://") {
		return table
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
