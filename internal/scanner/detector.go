package scanner

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RPM packages start with 0xED 0xAB 0xEE 0xDB
var rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}

// leadSize is the size of the RPM lead; bytes 6-7 hold the package type,
// 0 for binary and 1 for source packages.
const leadSize = 96

// DetectPackageType determines the package type based on magic bytes and file extension
func DetectPackageType(path string) (PackageType, error) {
	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	lead := make([]byte, leadSize)
	n, err := io.ReadFull(f, lead)
	if err != nil && n == 0 {
		if err == io.EOF {
			return TypeUnknown, nil
		}
		return TypeUnknown, err
	}
	lead = lead[:n]

	if bytes.HasPrefix(lead, rpmMagic) && len(lead) >= 8 {
		if binary.BigEndian.Uint16(lead[6:8]) == 1 {
			return TypeSourceRpm, nil
		}
		return TypeRpm, nil
	}

	// Files named like packages but without the magic are handed to the
	// parser so the user gets a parse error instead of silence.
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".src.rpm") {
		return TypeSourceRpm, nil
	}
	if filepath.Ext(base) == ".rpm" {
		return TypeRpm, nil
	}
	return TypeUnknown, nil
}
