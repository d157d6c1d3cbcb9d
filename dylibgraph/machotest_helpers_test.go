package dylibgraph

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// rawCmd describes one load command to bake into a synthetic Mach-O file.
type rawCmd struct {
	cmd  uint32 // e.g. loadCmdDylibRaw, loadCmdRpathRaw
	name string // path embedded after the command's fixed header
}

const (
	loadCmdDylibRaw = 0xc
	loadCmdRpathRaw = 0x8000001c
)

// buildMachO writes a minimal little-endian 64-bit Mach-O file (magic
// 0xfeedfacf) containing the given load commands, and returns its path.
// It is not a loadable binary -- only enough structure for
// debug/macho.Open to parse the commands we care about, which is all the
// Mach-O Inspector needs.
func buildMachO(t *testing.T, dir, name string, cmds []rawCmd) string {
	t.Helper()

	var cmdBuf bytes.Buffer
	for _, c := range cmds {
		var header bytes.Buffer
		switch c.cmd {
		case loadCmdDylibRaw:
			// DylibCmd: Cmd, Len, Name(offset), Time, CurrentVersion, CompatVersion
			binary.Write(&header, binary.LittleEndian, uint32(c.cmd))
			binary.Write(&header, binary.LittleEndian, uint32(0)) // Len placeholder
			binary.Write(&header, binary.LittleEndian, uint32(24))
			binary.Write(&header, binary.LittleEndian, uint32(0))
			binary.Write(&header, binary.LittleEndian, uint32(0))
			binary.Write(&header, binary.LittleEndian, uint32(0))
		case loadCmdRpathRaw:
			// RpathCmd: Cmd, Len, Path(offset)
			binary.Write(&header, binary.LittleEndian, uint32(c.cmd))
			binary.Write(&header, binary.LittleEndian, uint32(0)) // Len placeholder
			binary.Write(&header, binary.LittleEndian, uint32(12))
		default:
			t.Fatalf("unsupported synthetic command %#x", c.cmd)
		}

		payload := append([]byte(c.name), 0)
		total := header.Len() + len(payload)
		for total%4 != 0 {
			payload = append(payload, 0)
			total++
		}

		full := append(header.Bytes(), payload...)
		binary.LittleEndian.PutUint32(full[4:8], uint32(total))
		cmdBuf.Write(full)
	}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(0xfeedfacf)) // Magic64
	binary.Write(&out, binary.LittleEndian, uint32(0x01000007)) // Cpu: CpuAmd64
	binary.Write(&out, binary.LittleEndian, uint32(3))          // SubCpu
	binary.Write(&out, binary.LittleEndian, uint32(2))          // Type: TypeExec
	binary.Write(&out, binary.LittleEndian, uint32(len(cmds)))  // Ncmd
	binary.Write(&out, binary.LittleEndian, uint32(cmdBuf.Len()))
	binary.Write(&out, binary.LittleEndian, uint32(0))          // Flags
	binary.Write(&out, binary.LittleEndian, uint32(0))          // Reserved (64-bit only)
	out.Write(cmdBuf.Bytes())

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, out.Bytes(), 0o755); err != nil {
		t.Fatalf("writing synthetic Mach-O %s: %v", path, err)
	}
	return path
}
