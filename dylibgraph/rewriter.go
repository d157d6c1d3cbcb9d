package dylibgraph

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	gomacho "github.com/blacktop/go-macho"
)

// HostMachine reports the build host's kernel machine string, for driver
// diagnostics.
func HostMachine() string {
	return hostMachineString()
}

// RewriteAll walks every copied Mach-O node in t, rewriting each bound
// outgoing reference to an in-bundle @loader_path token and re-signing
// ad-hoc where required. It must run after Finalize: it
// reads TargetNode.CopiedPath values that Finalize is responsible for
// having set.
func (t *Tracker) RewriteAll() error {
	for _, n := range t.order {
		if !n.IsMachOFile {
			continue
		}
		if err := rewriteNode(n); err != nil {
			return err
		}
	}
	return nil
}

// rewriteNode rewrites every bound edge of n and then applies the ad-hoc
// signature. It is safe to call twice on the same node: an edge whose
// on-disk reference already equals the desired new reference is left
// untouched, which is what makes RewriteAll idempotent.
func rewriteNode(n *Node) error {
	for _, e := range n.OutgoingEdges() {
		if !e.IsCopied {
			continue // external reference: no rewrite emitted
		}

		newRef := loaderRelative(n, e.TargetNode)
		if e.RawToken == newRef {
			e.rewritten = true
			continue
		}

		already, err := hasLoadReference(n.CopiedPath, newRef)
		if err != nil {
			return newErr(KindRewriteFailed, n.CopiedPath, "could not reinspect binary before rewrite", err)
		}
		if already {
			e.rewritten = true
			continue
		}

		if err := changeLoadReference(n.CopiedPath, e.RawToken, newRef); err != nil {
			return newErr(KindRewriteFailed, n.CopiedPath,
				fmt.Sprintf("could not change %s -> %s", e.RawToken, newRef), err)
		}
		e.rewritten = true
	}

	return Sign(n.CopiedPath)
}

// loaderRelative computes the @loader_path-relative token: the path from
// referrer's copied-directory to target's copied location, with separators
// normalized and no absolute prefix.
func loaderRelative(referrer, target *Node) string {
	rel, err := filepath.Rel(filepath.Dir(referrer.CopiedPath), target.CopiedPath)
	if err != nil {
		// Nothing sane to fall back to; keep the absolute path rather
		// than emit a broken token.
		return filepath.ToSlash(target.CopiedPath)
	}
	return "@loader_path/" + filepath.ToSlash(rel)
}

// hasLoadReference reports whether path's current load commands already
// contain ref as a load-dylib path.
func hasLoadReference(path, ref string) (bool, error) {
	commands, err := LoadCommands(path)
	if err != nil {
		return false, err
	}
	for _, c := range commands {
		if c.Kind == KindLoadDylib && c.Path == ref {
			return true, nil
		}
	}
	return false, nil
}

// changeLoadReference rewrites oldRef to newRef in the Mach-O file at
// path using install_name_tool, restoring the file's original mode
// afterward. Mirrors cx_Freeze's changeLoadReference / jtanx's collector
// install_name_tool invocations.
func changeLoadReference(path, oldRef, newRef string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	original := info.Mode()
	if err := os.Chmod(path, original|0o200); err != nil {
		return err
	}
	defer os.Chmod(path, original)

	out, err := exec.Command("install_name_tool", "-change", oldRef, newRef, path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("install_name_tool: %w: %s", err, out)
	}
	return nil
}

// Sign applies an ad-hoc code signature on ARM64 hosts (a no-op
// elsewhere), preserving entitlements, requirements, flags and runtime
// metadata. If the first attempt fails it performs the
// inode-replacement workaround (copy to a fresh inode, move back) known
// to clear codesign's stale-signature bug on Apple Silicon, then retries
// once; a second failure is fatal.
func Sign(path string) error {
	if !hostIsARM64() {
		return nil
	}

	before := readEntitlementsBestEffort(path)

	if err := runCodesign(path); err == nil {
		logEntitlementDrift(path, before)
		return nil
	}

	if err := replaceInode(path); err != nil {
		return newErr(KindSignFailed, path, "inode-replacement workaround failed", err)
	}

	if err := runCodesign(path); err != nil {
		return newErr(KindSignFailed, path, "ad-hoc signing failed after retry", err)
	}
	logEntitlementDrift(path, before)
	return nil
}

func runCodesign(path string) error {
	out, err := exec.Command("codesign", "--sign", "-", "--force",
		"--preserve-metadata=entitlements,requirements,flags,runtime", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("codesign: %w: %s", err, out)
	}
	return nil
}

// replaceInode copies path to a fresh inode in a scoped temporary
// directory and moves it back over the original, which is guaranteed
// removed on every exit path. Mirrors cx_Freeze's applyAdHocSignature
// workaround.
func replaceInode(path string) error {
	dir, err := os.MkdirTemp("", "machofreeze-sign-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, filepath.Base(path))
	if err := copyFileContents(path, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// copyFileContents copies from's contents (and mode) to to. Mirrors the
// copyFile helper in jtanx/lddx's collector.go.
func copyFileContents(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// readEntitlementsBestEffort returns the embedded entitlements plist, or
// "" if the file has no code signature or could not be parsed. Used only
// for the diagnostic comparison in logEntitlementDrift; failures here are
// never fatal to signing.
func readEntitlementsBestEffort(path string) string {
	f, err := gomacho.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	cs := f.CodeSignature()
	if cs == nil {
		return ""
	}
	return cs.Entitlements
}

func logEntitlementDrift(path, before string) {
	after := readEntitlementsBestEffort(path)
	if before != "" && before != after {
		LogWarn("Entitlements for %s changed across ad-hoc signing (expected --preserve-metadata to keep them)", path)
	}
}
