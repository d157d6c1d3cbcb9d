package dylibgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	executablePathPrefix = "@executable_path/"
	loaderPathPrefix     = "@loader_path/"
	rpathPrefix          = "@rpath/"
)

// IsExecutablePath reports whether token is an @executable_path reference,
// whether or not it carries a trailing path component.
func IsExecutablePath(token string) bool {
	return token == strings.TrimSuffix(executablePathPrefix, "/") || strings.HasPrefix(token, executablePathPrefix)
}

// IsLoaderPath reports whether token is an @loader_path reference, whether
// or not it carries a trailing path component.
func IsLoaderPath(token string) bool {
	return token == strings.TrimSuffix(loaderPathPrefix, "/") || strings.HasPrefix(token, loaderPathPrefix)
}

// IsRPath reports whether token is an @rpath reference, whether or not it
// carries a trailing path component.
func IsRPath(token string) bool {
	return token == strings.TrimSuffix(rpathPrefix, "/") || strings.HasPrefix(token, rpathPrefix)
}

// trimTokenPrefix strips prefix (including its trailing slash) from token,
// also handling the bare form with no trailing slash at all -- real
// LC_RPATH entries are frequently just "@loader_path" on its own, meaning
// "this directory".
func trimTokenPrefix(token, prefix string) string {
	if token == strings.TrimSuffix(prefix, "/") {
		return ""
	}
	return strings.TrimPrefix(token, prefix)
}

// resolveLoaderPath implements rule 1: @loader_path/ is
// replaced with the directory of n's own source path.
func resolveLoaderPath(token string, n *Node) string {
	rest := trimTokenPrefix(token, loaderPathPrefix)
	return filepath.Join(filepath.Dir(n.SourcePath), rest)
}

// resolveExecutablePath implements rule 2: by default the
// directory of n's own source path stands in for @executable_path, unless
// the resolver was configured with a distinguished root-executable
// directory.
func resolveExecutablePath(token string, n *Node) string {
	rest := trimTokenPrefix(token, executablePathPrefix)
	if n.opts.RootExecutable != "" {
		return filepath.Join(n.opts.RootExecutable, rest)
	}
	return filepath.Join(filepath.Dir(n.SourcePath), rest)
}

// resolveRPath implements rule 3: walk n's effective search
// path in order and return the first candidate that exists and is a
// Mach-O file. In strict mode, a miss is fatal; otherwise it is deferred
// to Tracker.Finalize's recovery pass.
func resolveRPath(token string, n *Node) (string, error) {
	rest := trimTokenPrefix(token, rpathPrefix)
	for _, dir := range n.EffectiveSearchPath() {
		candidate := filepath.Join(dir, rest)
		if IsMachO(candidate) {
			return candidate, nil
		}
	}
	if n.opts.Strict {
		return "", newErr(KindUnresolvedRpathStrict, n.SourcePath, fmt.Sprintf("could not resolve %s", token), nil)
	}
	return "", nil
}

// resolveToken implements the reference token resolution rules: given a
// raw token and the node whose load command it came from, it returns an
// absolute host path, or ("" , nil) if resolution should be deferred to
// finalization, or a non-nil error if resolution fails fatally.
func resolveToken(token string, n *Node) (string, error) {
	switch {
	case IsLoaderPath(token):
		return resolveLoaderPath(token, n), nil
	case IsExecutablePath(token):
		return resolveExecutablePath(token, n), nil
	case IsRPath(token):
		return resolveRPath(token, n)
	}

	if filepath.IsAbs(token) {
		if _, err := os.Stat(token); err == nil {
			return token, nil
		}
		return "", nil
	}

	// Relative, no special prefix: resolve next to the referring file, or
	// fail fatally, since the dynamic loader would also fail here.
	candidate := filepath.Join(filepath.Dir(n.SourcePath), token)
	if IsMachO(candidate) {
		return candidate, nil
	}
	return "", fmt.Errorf("dylibgraph: relative reference %q next to %s does not resolve to a Mach-O file", token, n.SourcePath)
}
