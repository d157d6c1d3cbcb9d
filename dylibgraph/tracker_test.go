package dylibgraph

import (
	"os"
	"path/filepath"
	"testing"
)

// TestFinalize_ChainOfThree builds a three-binary chain: A (root)
// --@rpath--> B --@rpath--> C, with A's LC_RPATH
// covering the shared lib directory and B contributing its own directory
// too, and checks that Finalize binds every edge to the right node.
func TestFinalize_ChainOfThree(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	lib := filepath.Join(root, "lib")
	for _, d := range []string{bin, lib} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	cPath := buildMachO(t, lib, "C.dylib", nil)
	bPath := buildMachO(t, lib, "B.dylib", []rawCmd{
		{cmd: loadCmdRpathRaw, name: "@loader_path"},
		{cmd: loadCmdDylibRaw, name: "@rpath/C.dylib"},
	})
	aPath := buildMachO(t, bin, "A", []rawCmd{
		{cmd: loadCmdRpathRaw, name: "@loader_path/../lib"},
		{cmd: loadCmdDylibRaw, name: "@rpath/B.dylib"},
	})

	bundle := t.TempDir()
	tracker := NewTracker(Options{})

	a, err := tracker.RecordCopy(aPath, filepath.Join(bundle, "A"), nil)
	if err != nil {
		t.Fatalf("RecordCopy(A): %v", err)
	}
	b, err := tracker.RecordCopy(bPath, filepath.Join(bundle, "lib", "B.dylib"), a)
	if err != nil {
		t.Fatalf("RecordCopy(B): %v", err)
	}
	c, err := tracker.RecordCopy(cPath, filepath.Join(bundle, "lib", "C.dylib"), b)
	if err != nil {
		t.Fatalf("RecordCopy(C): %v", err)
	}

	if err := tracker.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	aEdges := a.OutgoingEdges()
	if len(aEdges) != 1 || aEdges[0].TargetNode != b {
		t.Fatalf("A's edge should be bound to B, got %+v", aEdges)
	}
	bEdges := b.OutgoingEdges()
	if len(bEdges) != 1 || bEdges[0].TargetNode != c {
		t.Fatalf("B's edge should be bound to C, got %+v", bEdges)
	}
}

// TestLoaderRelative checks the install-name rewrite targets that
// RewriteAll would compute for the chain above, without needing
// install_name_tool to actually be present.
func TestLoaderRelative(t *testing.T) {
	a := &Node{CopiedPath: "/bundle/A"}
	b := &Node{CopiedPath: "/bundle/lib/B.dylib"}
	c := &Node{CopiedPath: "/bundle/lib/C.dylib"}

	if got := loaderRelative(a, b); got != "@loader_path/lib/B.dylib" {
		t.Errorf("A->B: got %q", got)
	}
	if got := loaderRelative(b, c); got != "@loader_path/C.dylib" {
		t.Errorf("B->C: got %q", got)
	}
}

// TestFinalize_ExternalReferenceRetained mirrors "external
// reference" scenario: an absolute path that exists on disk but was never
// copied into the bundle resolves but is never bound.
func TestFinalize_ExternalReferenceRetained(t *testing.T) {
	dir := t.TempDir()
	externalDir := filepath.Join(dir, "external")
	if err := os.MkdirAll(externalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	external := buildMachO(t, externalDir, "libSystem.dylib", nil)

	appPath := buildMachO(t, dir, "app", []rawCmd{
		{cmd: loadCmdDylibRaw, name: external},
	})

	tracker := NewTracker(Options{})
	a, err := tracker.RecordCopy(appPath, filepath.Join(t.TempDir(), "app"), nil)
	if err != nil {
		t.Fatalf("RecordCopy: %v", err)
	}
	if err := tracker.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	edges := a.OutgoingEdges()
	if len(edges) != 1 {
		t.Fatalf("got %d edges, want 1", len(edges))
	}
	if !edges[0].IsResolved() {
		t.Error("external reference should resolve")
	}
	if edges[0].IsCopied {
		t.Error("external reference should never be bound/copied")
	}
}

// TestFinalize_UnresolvedRpathFatal checks the zero-candidate basename
// recovery path: a lenient-mode @rpath miss that finalize also can't
// recover is a fatal KindUnresolvedAfterFinalize.
func TestFinalize_UnresolvedRpathFatal(t *testing.T) {
	dir := t.TempDir()
	appPath := buildMachO(t, dir, "app", []rawCmd{
		{cmd: loadCmdDylibRaw, name: "@rpath/nowhere.dylib"},
	})

	tracker := NewTracker(Options{})
	if _, err := tracker.RecordCopy(appPath, filepath.Join(t.TempDir(), "app"), nil); err != nil {
		t.Fatalf("RecordCopy: %v", err)
	}

	err := tracker.Finalize()
	if err == nil {
		t.Fatal("expected finalize to fail when no basename candidate exists")
	}
	dgErr, ok := err.(*Error)
	if !ok || dgErr.Kind != KindUnresolvedAfterFinalize {
		t.Fatalf("expected KindUnresolvedAfterFinalize, got %v", err)
	}
}

// TestFinalize_UnresolvedRpathBasenameRecovery checks the one-candidate
// recovery path: an @rpath miss at construction time (lenient mode) that
// finalize can still recover because exactly one copied node shares the
// token's basename.
func TestFinalize_UnresolvedRpathBasenameRecovery(t *testing.T) {
	dir := t.TempDir()
	elsewhere := filepath.Join(dir, "elsewhere")
	if err := os.MkdirAll(elsewhere, 0o755); err != nil {
		t.Fatal(err)
	}
	libPath := buildMachO(t, elsewhere, "libhelper.dylib", nil)

	appPath := buildMachO(t, dir, "app", []rawCmd{
		{cmd: loadCmdDylibRaw, name: "@rpath/libhelper.dylib"},
	})

	bundle := t.TempDir()
	tracker := NewTracker(Options{})
	a, err := tracker.RecordCopy(appPath, filepath.Join(bundle, "app"), nil)
	if err != nil {
		t.Fatalf("RecordCopy(app): %v", err)
	}
	lib, err := tracker.RecordCopy(libPath, filepath.Join(bundle, "libhelper.dylib"), nil)
	if err != nil {
		t.Fatalf("RecordCopy(lib): %v", err)
	}

	if err := tracker.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	edges := a.OutgoingEdges()
	if len(edges) != 1 || edges[0].TargetNode != lib {
		t.Fatalf("expected the single basename candidate to bind, got %+v", edges)
	}
}

// TestRecordCopy_CopySlotConflict mirrors copy-slot conflict
// scenario: a second, different source assigned to an already-occupied
// copied path is refused with a warning, and the first node wins.
func TestRecordCopy_CopySlotConflict(t *testing.T) {
	dir := t.TempDir()
	first := buildMachO(t, dir, "first.dylib", nil)
	second := buildMachO(t, dir, "second.dylib", nil)
	bundle := t.TempDir()
	dest := filepath.Join(bundle, "lib.dylib")

	tracker := NewTracker(Options{})
	n1, err := tracker.RecordCopy(first, dest, nil)
	if err != nil {
		t.Fatalf("RecordCopy(first): %v", err)
	}
	n2, err := tracker.RecordCopy(second, dest, nil)
	if err != nil {
		t.Fatalf("RecordCopy(second): %v", err)
	}
	if n2 != n1 {
		t.Fatal("second RecordCopy should return the first node, not create a new one")
	}
	if len(tracker.IterCopied()) != 1 {
		t.Fatalf("expected exactly one node to be tracked, got %d", len(tracker.IterCopied()))
	}
}

// TestRecordCopy_Idempotent checks the same (source, copied) pair recorded
// twice returns the same node without creating a duplicate.
func TestRecordCopy_Idempotent(t *testing.T) {
	dir := t.TempDir()
	source := buildMachO(t, dir, "lib.dylib", nil)
	dest := filepath.Join(t.TempDir(), "lib.dylib")

	tracker := NewTracker(Options{})
	n1, err := tracker.RecordCopy(source, dest, nil)
	if err != nil {
		t.Fatalf("first RecordCopy: %v", err)
	}
	n2, err := tracker.RecordCopy(source, dest, nil)
	if err != nil {
		t.Fatalf("second RecordCopy: %v", err)
	}
	if n1 != n2 {
		t.Fatal("recording the same (source, copied) pair twice should be idempotent")
	}
	if len(tracker.IterCopied()) != 1 {
		t.Fatalf("expected exactly one node, got %d", len(tracker.IterCopied()))
	}
}
