// Package dylibgraph implements the resolver/rewriter core of a macOS
// freeze tool: it parses Mach-O load commands, resolves @executable_path,
// @loader_path, @rpath and absolute/relative references through the chain
// of referrers that brought a file into the bundle, tracks a deduplicated
// graph of binaries, and rewrites install-name references once the graph
// is fully traversed.
package dylibgraph

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"fmt"
	"os"
)

// Mach-O load commands that the stdlib debug/macho package does not model
// as typed Loads. Their payload layout matches DylibCmd, so we decode them
// the same way jtanx/lddx's TryParseLoadCmd does.
const (
	loadCmdReq             = 0x80000000
	loadCmdLoadWeakDylib   = macho.LoadCmd(0x18 | loadCmdReq)
	loadCmdLoadUpwardDylib = macho.LoadCmd(0x23 | loadCmdReq)
)

// CommandKind discriminates the load commands the core cares about.
type CommandKind int

const (
	// KindOther covers any load command we don't need to special-case;
	// it is preserved only so callers can reconstruct command ordering.
	KindOther CommandKind = iota
	// KindLoadDylib is an LC_LOAD_DYLIB/LC_LOAD_WEAK_DYLIB/
	// LC_LOAD_UPWARD_DYLIB command referencing another binary.
	KindLoadDylib
	// KindRpath is an LC_RPATH command adding a runtime search directory.
	KindRpath
)

// Command is one parsed Mach-O load command. Path is populated only for
// KindLoadDylib and KindRpath; it is the literal token embedded in the
// binary with any trailing offset/version metadata stripped.
type Command struct {
	Kind CommandKind
	Path string
	Weak bool
}

// IsMachO reports whether path names a readable Mach-O or fat/universal
// binary. Non-files and files with no Mach-O magic return false, never an
// error; an I/O failure opening the file is swallowed the same way (the
// caller sees "not Mach-O", consistent with NotMachO severity).
func IsMachO(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if f, err := macho.Open(path); err == nil {
		f.Close()
		return true
	}
	if f, err := macho.OpenFat(path); err == nil {
		f.Close()
		return true
	}
	return false
}

// LoadCommands returns the ordered load commands of the Mach-O file at
// path. Fat/universal binaries are handled by reading the first slice's
// commands: load-dylib and rpath paths are structurally identical across
// architecture slices, which is all the resolver needs.
func LoadCommands(path string) ([]Command, error) {
	f, err := macho.Open(path)
	if err == nil {
		defer f.Close()
		return commandsFromFile(f), nil
	}

	fat, ferr := macho.OpenFat(path)
	if ferr != nil {
		return nil, newErr(KindParseError, path, "not a Mach-O or fat binary", ferr)
	}
	defer fat.Close()
	if len(fat.Arches) == 0 {
		return nil, newErr(KindParseError, path, "fat binary has no architecture slices", nil)
	}
	return commandsFromFile(fat.Arches[0].File), nil
}

func commandsFromFile(f *macho.File) []Command {
	commands := make([]Command, 0, len(f.Loads))
	for _, l := range f.Loads {
		switch v := l.(type) {
		case *macho.Dylib:
			commands = append(commands, Command{Kind: KindLoadDylib, Path: v.Name})
		case *macho.Rpath:
			commands = append(commands, Command{Kind: KindRpath, Path: v.Path})
		case macho.LoadBytes:
			if dl, ok := tryParseWeakDylib(v.Raw(), f.ByteOrder); ok {
				commands = append(commands, Command{Kind: KindLoadDylib, Path: dl, Weak: true})
			} else {
				commands = append(commands, Command{Kind: KindOther})
			}
		default:
			commands = append(commands, Command{Kind: KindOther})
		}
	}
	return commands
}

// tryParseWeakDylib decodes LC_LOAD_WEAK_DYLIB/LC_LOAD_UPWARD_DYLIB payloads,
// which debug/macho leaves as raw LoadBytes. The layout is DylibCmd followed
// by a NUL-terminated path string at hdr.Name.
func tryParseWeakDylib(data []byte, bo binary.ByteOrder) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	cmd := macho.LoadCmd(bo.Uint32(data[0:4]))
	if cmd != loadCmdLoadWeakDylib && cmd != loadCmdLoadUpwardDylib {
		return "", false
	}

	var hdr macho.DylibCmd
	if err := binary.Read(bytes.NewReader(data), bo, &hdr); err != nil {
		return "", false
	}
	if hdr.Name >= uint32(len(data)) {
		return "", false
	}
	end := int(hdr.Name)
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[hdr.Name:end]), true
}

func describeCommand(c Command) string {
	switch c.Kind {
	case KindLoadDylib:
		if c.Weak {
			return fmt.Sprintf("LC_LOAD_WEAK_DYLIB %s", c.Path)
		}
		return fmt.Sprintf("LC_LOAD_DYLIB %s", c.Path)
	case KindRpath:
		return fmt.Sprintf("LC_RPATH %s", c.Path)
	default:
		return "<other>"
	}
}
