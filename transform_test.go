package webbridge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsBundling(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"no imports", "window.x = 1;", false},
		{"import statement", `import { foo } from './utils.js';`, true},
		{"import no space", `import{foo} from './utils.js';`, true},
		{"dynamic import", `const m = import('./mod.js');`, true},
		{"comment with import word", `// this is important\nwindow.x = 1;`, false},
		{"require call", `const fs = require('./fs.js');`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := needsBundling(tt.source)
			if got != tt.want {
				t.Errorf("needsBundling(%q) = %v, want %v", tt.source, got, tt.want)
			}
		})
	}
}

func TestNeedsTransform(t *testing.T) {
	for path, want := range map[string]bool{
		"app.ts":     true,
		"APP.TS":     true,
		"view.tsx":   true,
		"view.jsx":   true,
		"module.mjs": true,
		"lib.js":     false,
		"style.css":  false,
	} {
		assert.Equal(t, want, needsTransform(path), path)
	}
}

func TestTransformScriptTypeScript(t *testing.T) {
	src := "interface P { n: number }\nconst p: P = { n: 2 };\n(window as any).n = p.n;"
	out, err := TransformScript(src, "/app/main.ts")
	require.NoError(t, err)
	assert.NotContains(t, out, "interface")
	assert.Contains(t, out, "window.n = p.n")
}

func TestTransformScriptBundlesImports(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "utils.ts"), []byte(`export function greet(name: string) { return "Hello " + name; }`), 0o644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "main.ts")
	src := `import { greet } from './utils';
(window as any).greeting = greet("World");`
	if err := os.WriteFile(main, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := TransformScript(src, main)
	require.NoError(t, err)
	assert.Contains(t, out, "Hello ")
	assert.False(t, strings.Contains(out, "import "), "imports should be bundled away: %s", out)
}

func TestTransformScriptSyntaxError(t *testing.T) {
	_, err := TransformScript("const = ;", "/app/broken.ts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/app/broken.ts")
}
