package fingerprint_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.trai.ch/mason/internal/adapters/fingerprint"
	"go.trai.ch/mason/internal/adapters/fs"
	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
)

func newEngine() *fingerprint.Engine {
	return fingerprint.NewEngine(fs.NewWalker(), fs.NewResolver())
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func fileNode(name string, norm domain.Normalization, patterns ...string) *domain.Node {
	return &domain.Node{
		Name: domain.NewInternedString(name),
		Inputs: []domain.InputProperty{{
			Name:          domain.NewInternedString("sources"),
			Patterns:      domain.InternStrings(patterns),
			Normalization: norm,
		}},
	}
}

func inputFingerprint(t *testing.T, e *fingerprint.Engine, node *domain.Node, root string) string {
	t.Helper()
	fps, err := e.FingerprintInputs(node, root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fps) != 1 {
		t.Fatalf("expected 1 fingerprint, got %d", len(fps))
	}
	return fps[0].Value
}

func TestEngine_DeterministicAcrossMtime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.go", "package a")
	e := newEngine()
	node := fileNode("compile", domain.NormalizationRelativePath, "src/**")

	first := inputFingerprint(t, e, node, root)

	// Touching the file must not change the fingerprint.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(root, "src/a.go"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if second := inputFingerprint(t, e, node, root); second != first {
		t.Error("fingerprint changed with mtime only")
	}
}

func TestEngine_ContentChangeChangesFingerprint(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.go", "package a")
	e := newEngine()
	node := fileNode("compile", domain.NormalizationRelativePath, "src/**")

	first := inputFingerprint(t, e, node, root)
	writeFile(t, root, "src/a.go", "package b")

	if second := inputFingerprint(t, e, node, root); second == first {
		t.Error("fingerprint unchanged after content edit")
	}
}

func TestEngine_RelativePathSensitiveToRename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.txt", "same content")
	e := newEngine()
	node := fileNode("compile", domain.NormalizationRelativePath, "src/**")

	first := inputFingerprint(t, e, node, root)

	if err := os.Rename(filepath.Join(root, "src/a.txt"), filepath.Join(root, "src/b.txt")); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if second := inputFingerprint(t, e, node, root); second == first {
		t.Error("structural fingerprint unchanged after rename")
	}
}

func TestEngine_ContentOnlyIgnoresNames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.txt", "alpha")
	writeFile(t, root, "src/b.txt", "beta")
	e := newEngine()
	node := fileNode("bundle", domain.NormalizationContentOnly, "src/**")

	first := inputFingerprint(t, e, node, root)

	// Swap the file names; the content multiset is unchanged.
	writeFile(t, root, "src/a.txt", "beta")
	writeFile(t, root, "src/b.txt", "alpha")

	if second := inputFingerprint(t, e, node, root); second != first {
		t.Error("content-only fingerprint changed after name swap")
	}

	writeFile(t, root, "src/a.txt", "gamma")
	if third := inputFingerprint(t, e, node, root); third == first {
		t.Error("content-only fingerprint unchanged after content edit")
	}
}

func TestEngine_NoneNormalizationIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.txt", "alpha")
	e := newEngine()
	node := fileNode("compile", domain.NormalizationNone, "src/**")

	first := inputFingerprint(t, e, node, root)
	writeFile(t, root, "src/a.txt", "totally different")

	if second := inputFingerprint(t, e, node, root); second != first {
		t.Error("NONE-normalized input affected the fingerprint")
	}
}

func TestEngine_MissingInputIsNotAnError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.txt", "alpha")
	e := newEngine()
	node := fileNode("compile", domain.NormalizationRelativePath, "src/a.txt")

	present := inputFingerprint(t, e, node, root)

	if err := os.Remove(filepath.Join(root, "src/a.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// The literal path still resolves as declared; its absence is recorded,
	// not raised.
	missing := inputFingerprint(t, e, node, root)
	if missing == present {
		t.Error("fingerprint unchanged after input removal")
	}
}

func TestEngine_ScalarInput(t *testing.T) {
	root := t.TempDir()
	e := newEngine()

	scalarNode := func(value string) *domain.Node {
		return &domain.Node{
			Name: domain.NewInternedString("compile"),
			Inputs: []domain.InputProperty{{
				Name:          domain.NewInternedString("flags"),
				Value:         value,
				Normalization: domain.NormalizationAbsolutePath,
			}},
		}
	}

	first := inputFingerprint(t, e, scalarNode("-O2"), root)
	same := inputFingerprint(t, e, scalarNode("-O2"), root)
	other := inputFingerprint(t, e, scalarNode("-O3"), root)

	if first != same {
		t.Error("scalar fingerprint not deterministic")
	}
	if first == other {
		t.Error("scalar fingerprint ignores value")
	}
}

func TestEngine_DeclarationOrderPreserved(t *testing.T) {
	root := t.TempDir()
	e := newEngine()
	node := &domain.Node{
		Name: domain.NewInternedString("compile"),
		Inputs: []domain.InputProperty{
			{Name: domain.NewInternedString("zeta"), Value: "1", Normalization: domain.NormalizationAbsolutePath},
			{Name: domain.NewInternedString("alpha"), Value: "2", Normalization: domain.NormalizationAbsolutePath},
		},
	}

	fps, err := e.FingerprintInputs(node, root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fps) != 2 || fps[0].Property != "zeta" || fps[1].Property != "alpha" {
		t.Errorf("expected declaration order [zeta alpha], got %+v", fps)
	}
}

func TestEngine_CacheKey(t *testing.T) {
	e := newEngine()
	node := &domain.Node{
		Name:    domain.NewInternedString("compile"),
		Command: []string{"gcc", "-c"},
	}
	inputs := []ports.PropertyFingerprint{{Property: "sources", Value: "abc"}}

	base := e.CacheKey(node, inputs)

	if e.CacheKey(node, inputs) != base {
		t.Error("cache key not deterministic")
	}

	changedCmd := *node
	changedCmd.Command = []string{"gcc", "-c", "-O2"}
	if e.CacheKey(&changedCmd, inputs) == base {
		t.Error("cache key ignores command changes")
	}

	changedTool := *node
	changedTool.Tool = "/opt/gcc"
	if e.CacheKey(&changedTool, inputs) == base {
		t.Error("cache key ignores tool changes")
	}

	if e.CacheKey(node, []ports.PropertyFingerprint{{Property: "sources", Value: "xyz"}}) == base {
		t.Error("cache key ignores input fingerprint changes")
	}
}

func TestEngine_FingerprintOutputs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "out/bin", "artifact")
	e := newEngine()
	node := &domain.Node{
		Name:    domain.NewInternedString("compile"),
		Outputs: domain.InternStrings([]string{"out/bin", "out/missing"}),
	}

	fps, err := e.FingerprintOutputs(node, root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fps) != 2 {
		t.Fatalf("expected 2 output fingerprints, got %d", len(fps))
	}
	if fps["out/bin"] == "" || fps["out/missing"] == "" {
		t.Errorf("expected non-empty fingerprints, got %v", fps)
	}
	if fps["out/bin"] == fps["out/missing"] {
		t.Error("present and missing outputs fingerprint identically")
	}

	// Deleting the artifact must change its fingerprint: that is what the
	// up-to-date check keys on.
	if err := os.Remove(filepath.Join(root, "out/bin")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	after, err := e.FingerprintOutputs(node, root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after["out/bin"] == fps["out/bin"] {
		t.Error("output fingerprint unchanged after deletion")
	}
}
